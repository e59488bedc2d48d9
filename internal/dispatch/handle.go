package dispatch

import (
	"context"
	"time"

	"github.com/danmuck/objctl/internal/observability"
	"github.com/danmuck/objctl/internal/response"
	"github.com/rs/zerolog/log"
)

// Handle tracks one in-flight dispatch.
type Handle struct {
	id        string
	module    string
	collector *response.Collector
	cancel    context.CancelFunc
	started   time.Time
	done      chan struct{}
	err       error
}

// ID is the execution id sent to the agent.
func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Module() string {
	return h.module
}

// Done is closed once the agent finished or the dispatch was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel abandons the dispatch. The response keeps the fragments collected so
// far and is flagged cancelled.
func (h *Handle) Cancel() {
	h.cancel()
}

// Snapshot returns the output collected so far.
func (h *Handle) Snapshot() response.Buffer {
	return h.collector.Snapshot()
}

// Wait blocks until the dispatch ends. If ctx ends first the dispatch is
// cancelled and the partial buffer is returned with ctx's error. A dispatch
// that already finished reports its own result even when ctx has expired.
func (h *Handle) Wait(ctx context.Context) (response.Buffer, error) {
	select {
	case <-h.done:
		return h.result()
	default:
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		h.cancel()
		<-h.done
		buf, err := h.result()
		if buf.Final() {
			return buf, err
		}
		return buf, ctx.Err()
	}
	return h.result()
}

func (h *Handle) result() (response.Buffer, error) {
	buf, err := h.collector.Finalize()
	if err != nil {
		return h.collector.Snapshot(), err
	}
	return buf, h.err
}

func (h *Handle) pump(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			h.collector.Cancel()
			h.finish(OutcomeCancelled, ctx.Err())
			return
		case sig, ok := <-signals:
			if ctx.Err() != nil {
				h.collector.Cancel()
				h.finish(OutcomeCancelled, ctx.Err())
				return
			}
			if !ok {
				h.collector.Fail(ErrStreamClosed.Error())
				h.finish(OutcomeFailed, &AgentError{Module: h.module, Code: FailureExecution, Reason: ErrStreamClosed.Error()})
				return
			}
			switch sig.Kind {
			case SignalOutput:
				if err := h.collector.Append(sig.Text); err == nil {
					observability.RecordResponseBytes(h.module, len(sig.Text))
				}
			case SignalComplete:
				h.collector.Complete()
				h.finish(OutcomeComplete, nil)
				return
			case SignalFailure:
				h.collector.Fail(sig.Reason)
				h.finish(OutcomeFailed, failureError(h.module, sig))
				return
			default:
				log.Warn().
					Str("module", h.module).
					Str("execution_id", h.id).
					Stringer("kind", sig.Kind).
					Msg("dispatch.Handle.pump ignoring unknown signal")
			}
		}
	}
}

func (h *Handle) finish(outcome string, err error) {
	h.err = err
	h.cancel()
	elapsed := time.Since(h.started)
	observability.RecordDispatch(h.module, outcome, elapsed)
	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("module", h.module).
		Str("execution_id", h.id).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("dispatch.Handle finished")
	close(h.done)
}

func failureError(module string, sig Signal) error {
	if sig.Code == FailureModuleLoad {
		return &ModuleLoadError{Module: module, Reason: sig.Reason}
	}
	code := sig.Code
	if code == "" {
		code = FailureExecution
	}
	return &AgentError{Module: module, Code: code, Reason: sig.Reason}
}
