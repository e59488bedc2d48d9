package response

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrClosed = errors.New("response: collector closed")

// NotYetCompleteError is returned by Finalize while output is still arriving.
type NotYetCompleteError struct {
	Fragments int
}

func (e *NotYetCompleteError) Error() string {
	return fmt.Sprintf("response: not yet complete (%d fragments so far)", e.Fragments)
}

// State is the lifecycle marker of a response.
type State string

const (
	StateOpen      State = "open"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Buffer is a frozen view of collected output.
type Buffer struct {
	fragments []string
	state     State
	reason    string
}

// String joins fragments in arrival order.
func (b Buffer) String() string {
	return strings.Join(b.fragments, "")
}

func (b Buffer) Fragments() []string {
	out := make([]string, len(b.fragments))
	copy(out, b.fragments)
	return out
}

func (b Buffer) State() State {
	return b.state
}

// Final reports whether the agent signalled end of output.
func (b Buffer) Final() bool {
	return b.state == StateComplete || b.state == StateFailed
}

func (b Buffer) Cancelled() bool {
	return b.state == StateCancelled
}

// Reason is the agent-supplied failure reason, if any.
func (b Buffer) Reason() string {
	return b.reason
}

// Collector accumulates output fragments for one invocation. It supports one
// appender and one finalizer running concurrently.
type Collector struct {
	mu        sync.Mutex
	fragments []string
	state     State
	reason    string
	final     *Buffer
	done      chan struct{}
}

func NewCollector() *Collector {
	return &Collector{state: StateOpen, done: make(chan struct{})}
}

// Append adds a fragment. Fragments are kept verbatim, including empty ones.
func (c *Collector) Append(fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrClosed
	}
	c.fragments = append(c.fragments, fragment)
	return nil
}

// Complete marks end of output.
func (c *Collector) Complete() bool {
	return c.close(StateComplete, "")
}

// Fail marks end of output with an agent-reported reason.
func (c *Collector) Fail(reason string) bool {
	return c.close(StateFailed, reason)
}

// Cancel stops collection without finalizing. Collected fragments stay readable.
func (c *Collector) Cancel() bool {
	return c.close(StateCancelled, "")
}

func (c *Collector) close(state State, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false
	}
	c.state = state
	c.reason = reason
	frozen := c.snapshotLocked()
	c.final = &frozen
	close(c.done)
	return true
}

// Done is closed once the collector leaves the open state.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Finalize returns the frozen buffer. Repeated calls return the same buffer.
// A cancelled collector returns its partial, non-final buffer.
func (c *Collector) Finalize() (Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return Buffer{}, &NotYetCompleteError{Fragments: len(c.fragments)}
	}
	return *c.final, nil
}

// Wait blocks until the collector is closed or ctx ends.
func (c *Collector) Wait(ctx context.Context) (Buffer, error) {
	select {
	case <-c.done:
		return c.Finalize()
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Snapshot returns what has been collected so far, in any state.
func (c *Collector) Snapshot() Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) snapshotLocked() Buffer {
	fragments := make([]string, len(c.fragments))
	copy(fragments, c.fragments)
	return Buffer{fragments: fragments, state: c.state, reason: c.reason}
}
