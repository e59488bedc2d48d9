// Package agenttest provides an in-memory agent for dispatch tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/dispatch"
)

// Module is a fake object module. Run receives the decoded arguments and
// emits output fragments; a returned error becomes an execution failure.
type Module struct {
	Schema []args.Tag
	Run    func(ctx context.Context, values args.List, emit func(string)) error
}

// Agent implements dispatch.Transport in memory.
type Agent struct {
	mu        sync.Mutex
	modules   map[string]Module
	requests  []dispatch.ExecutionRequest
	mode      args.LengthMode
	SubmitErr error
}

func New() *Agent {
	return &Agent{modules: make(map[string]Module)}
}

// WithWideLength sets the length mode the agent parses wide strings with.
func (a *Agent) WithWideLength(mode args.LengthMode) *Agent {
	a.mode = mode
	return a
}

// Load makes a module available under id.
func (a *Agent) Load(id string, m Module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modules[id] = m
}

// Requests returns every request submitted so far.
func (a *Agent) Requests() []dispatch.ExecutionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]dispatch.ExecutionRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

func (a *Agent) Submit(ctx context.Context, req dispatch.ExecutionRequest) (<-chan dispatch.Signal, error) {
	a.mu.Lock()
	if a.SubmitErr != nil {
		err := a.SubmitErr
		a.mu.Unlock()
		return nil, err
	}
	a.requests = append(a.requests, req)
	mod, ok := a.modules[req.ModuleID]
	a.mu.Unlock()

	out := make(chan dispatch.Signal)
	go func() {
		defer close(out)
		send := func(sig dispatch.Signal) bool {
			select {
			case out <- sig:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !ok {
			send(dispatch.Failure(dispatch.FailureModuleLoad, fmt.Sprintf("module %s not loaded", req.BinaryName)))
			return
		}
		Run(ctx, mod, a.mode, req.Arguments, send)
	}()
	return out, nil
}

// Run decodes buf for m, runs it and reports through send. It is shared by
// the in-memory agent and broker-backed test agents.
func Run(ctx context.Context, m Module, mode args.LengthMode, buf []byte, send func(dispatch.Signal) bool) {
	values, err := args.Decode(buf, m.Schema, mode)
	if err != nil {
		send(dispatch.Failure(dispatch.FailureExecution, err.Error()))
		return
	}
	alive := true
	emit := func(text string) {
		if alive {
			alive = send(dispatch.Output(text))
		}
	}
	if err := m.Run(ctx, values, emit); err != nil {
		send(dispatch.Failure(dispatch.FailureExecution, err.Error()))
		return
	}
	if alive {
		send(dispatch.Complete())
	}
}

// Echo is a module that writes each text argument on its own line.
func Echo(schema ...args.Tag) Module {
	return Module{
		Schema: schema,
		Run: func(ctx context.Context, values args.List, emit func(string)) error {
			for _, v := range values {
				emit(v.Text() + "\n")
			}
			return nil
		},
	}
}
