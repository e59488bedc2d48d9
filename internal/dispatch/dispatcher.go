package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/observability"
	"github.com/danmuck/objctl/internal/response"
	"github.com/danmuck/objctl/internal/task"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Outcome labels recorded per dispatch.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Dispatcher runs any registered task; task identity and schema are data.
type Dispatcher struct {
	registry  *task.Registry
	transport Transport
	packer    Packer
	newID     func() string
}

type Option func(*Dispatcher)

// WithPacker replaces the default argument encoder.
func WithPacker(p Packer) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.packer = p
		}
	}
}

func New(registry *task.Registry, transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		transport: transport,
		packer:    args.Encoder{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type callOptions struct {
	preamble string
}

type CallOption func(*callOptions)

// WithPreamble appends a front-end status line to the response before the
// request is submitted.
func WithPreamble(text string) CallOption {
	return func(o *callOptions) {
		o.preamble = text
	}
}

// CheckArguments compares values against the descriptor schema position by position.
func CheckArguments(desc task.Descriptor, values args.List) error {
	schema := desc.Schema()
	n := min(len(schema), len(values))
	for i := 0; i < n; i++ {
		if got := values[i].Tag(); got != schema[i] {
			return &ArgumentSchemaMismatch{
				Module:   desc.ModuleID(),
				Position: i,
				Want:     schema[i],
				Got:      got,
				WantLen:  len(schema),
				GotLen:   len(values),
			}
		}
	}
	if len(schema) != len(values) {
		m := &ArgumentSchemaMismatch{
			Module:   desc.ModuleID(),
			Position: n,
			WantLen:  len(schema),
			GotLen:   len(values),
		}
		if n < len(schema) {
			m.Want = schema[n]
		} else {
			m.Got = values[n].Tag()
		}
		return m
	}
	return nil
}

// DispatchModule resolves moduleID in the registry and dispatches it.
func (d *Dispatcher) DispatchModule(ctx context.Context, moduleID string, values args.List, opts ...CallOption) (*Handle, error) {
	desc, err := d.registry.Resolve(moduleID)
	if err != nil {
		observability.RecordDispatch(moduleID, OutcomeRejected, 0)
		return nil, err
	}
	return d.Dispatch(ctx, desc, values, opts...)
}

// Dispatch validates and encodes values, submits them to the agent and returns
// a handle that yields the response once the agent signals completion.
// Cancelling ctx cancels the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, desc task.Descriptor, values args.List, opts ...CallOption) (*Handle, error) {
	module := desc.ModuleID()
	if err := CheckArguments(desc, values); err != nil {
		log.Warn().Str("module", module).Err(err).Msg("dispatch.Dispatcher.Dispatch rejected")
		observability.RecordDispatch(module, OutcomeRejected, 0)
		return nil, err
	}
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}

	buf, err := d.packer.Encode(values)
	if err != nil {
		observability.RecordDispatch(module, OutcomeRejected, 0)
		return nil, err
	}
	req := ExecutionRequest{
		ExecutionID: d.newID(),
		ModuleID:    module,
		BinaryName:  desc.BinaryName(),
		BinaryDir:   desc.BinaryDir(),
		Arguments:   buf,
	}
	if err := req.Validate(); err != nil {
		observability.RecordDispatch(module, OutcomeRejected, 0)
		return nil, err
	}

	collector := response.NewCollector()
	if call.preamble != "" {
		if err := collector.Append(call.preamble); err != nil {
			observability.RecordDispatch(module, OutcomeRejected, 0)
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	started := time.Now()
	signals, err := d.transport.Submit(runCtx, req)
	if err != nil {
		cancel()
		collector.Cancel()
		observability.RecordDispatch(module, OutcomeRejected, 0)
		return nil, fmt.Errorf("%w: module %q: %w", ErrSubmit, module, err)
	}
	log.Debug().
		Str("module", module).
		Str("execution_id", req.ExecutionID).
		Int("arg_bytes", len(buf)).
		Msg("dispatch.Dispatcher.Dispatch submitted")

	h := &Handle{
		id:        req.ExecutionID,
		module:    module,
		collector: collector,
		cancel:    cancel,
		started:   started,
		done:      make(chan struct{}),
	}
	go h.pump(runCtx, signals)
	return h, nil
}
