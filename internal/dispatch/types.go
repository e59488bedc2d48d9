package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/objctl/internal/args"
)

// ExecutionRequest is what the agent receives for one invocation.
type ExecutionRequest struct {
	ExecutionID string
	ModuleID    string
	BinaryName  string
	BinaryDir   string
	Arguments   []byte
}

func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.ExecutionID) == "" {
		return fmt.Errorf("execution request missing execution_id")
	}
	if strings.TrimSpace(r.ModuleID) == "" {
		return fmt.Errorf("execution request missing module_id")
	}
	if strings.TrimSpace(r.BinaryName) == "" {
		return fmt.Errorf("execution request missing binary_name")
	}
	return nil
}

type SignalKind uint8

const (
	SignalOutput SignalKind = iota + 1
	SignalComplete
	SignalFailure
)

func (k SignalKind) String() string {
	switch k {
	case SignalOutput:
		return "output"
	case SignalComplete:
		return "complete"
	case SignalFailure:
		return "failure"
	default:
		return fmt.Sprintf("signal(%d)", uint8(k))
	}
}

// Failure codes reported by agents.
const (
	FailureModuleLoad = "module_load"
	FailureExecution  = "execution"
)

// Signal is one item of an agent's response stream.
type Signal struct {
	Kind   SignalKind
	Text   string
	Code   string
	Reason string
}

func Output(text string) Signal {
	return Signal{Kind: SignalOutput, Text: text}
}

func Complete() Signal {
	return Signal{Kind: SignalComplete}
}

func Failure(code, reason string) Signal {
	return Signal{Kind: SignalFailure, Code: code, Reason: reason}
}

// Transport hands requests to an agent. The returned channel yields signals in
// the order the agent emitted them and ends with one Complete or Failure.
// Implementations stop sending and release resources when ctx ends.
type Transport interface {
	Submit(ctx context.Context, req ExecutionRequest) (<-chan Signal, error)
}

// Packer turns an argument list into the module's argument buffer.
type Packer interface {
	Encode(list args.List) ([]byte, error)
}
