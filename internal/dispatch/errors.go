package dispatch

import (
	"errors"
	"fmt"

	"github.com/danmuck/objctl/internal/args"
)

var (
	ErrSubmit       = errors.New("dispatch: submit failed")
	ErrStreamClosed = errors.New("dispatch: agent stream closed before completion")
)

// ArgumentSchemaMismatch rejects an argument list before anything is encoded.
// Position is the first offending index; when the lists differ only in
// length it is the length of the shorter one.
type ArgumentSchemaMismatch struct {
	Module   string
	Position int
	Want     args.Tag
	Got      args.Tag
	WantLen  int
	GotLen   int
}

func (e *ArgumentSchemaMismatch) Error() string {
	if e.WantLen != e.GotLen {
		return fmt.Sprintf(
			"dispatch: module %q expects %d arguments, got %d (first difference at position %d)",
			e.Module, e.WantLen, e.GotLen, e.Position,
		)
	}
	return fmt.Sprintf("dispatch: module %q argument %d: want %s, got %s", e.Module, e.Position, e.Want, e.Got)
}

// ModuleLoadError is reported by the agent when it cannot load or run the module.
type ModuleLoadError struct {
	Module string
	Reason string
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("dispatch: module %q failed to load: %s", e.Module, e.Reason)
}

// AgentError is any other agent-reported failure.
type AgentError struct {
	Module string
	Code   string
	Reason string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("dispatch: module %q failed (%s): %s", e.Module, e.Code, e.Reason)
}
