package mqtt

import (
	"sync"

	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/protocol/wire"
)

// sequencer turns possibly reordered or redelivered stream frames into an
// ordered signal list. Output is released strictly by seq; Complete only
// after every announced fragment was released.
type sequencer struct {
	mu       sync.Mutex
	next     uint64
	pending  map[uint64]string
	ready    []dispatch.Signal
	total    uint64
	closing  bool
	terminal bool
	dropped  int
	notify   chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{
		next:    1,
		pending: make(map[uint64]string),
		notify:  make(chan struct{}, 1),
	}
}

func (s *sequencer) output(o wire.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || o.Seq < s.next {
		s.dropped++
		return
	}
	if _, dup := s.pending[o.Seq]; dup {
		s.dropped++
		return
	}
	s.pending[o.Seq] = o.Text
	s.releaseLocked()
}

func (s *sequencer) complete(c wire.Complete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal || s.closing {
		return
	}
	s.closing = true
	s.total = c.Fragments
	s.releaseLocked()
}

// failure releases whatever is contiguous, then the failure.
func (s *sequencer) failure(f wire.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		return
	}
	s.releaseLocked()
	s.terminal = true
	s.ready = append(s.ready, dispatch.Failure(f.Code, f.Reason))
	s.wakeLocked()
}

func (s *sequencer) releaseLocked() {
	for {
		text, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.ready = append(s.ready, dispatch.Output(text))
		s.next++
	}
	if s.closing && !s.terminal && s.next > s.total {
		s.terminal = true
		s.ready = append(s.ready, dispatch.Complete())
	}
	s.wakeLocked()
}

func (s *sequencer) wakeLocked() {
	if len(s.ready) == 0 {
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// take drains released signals.
func (s *sequencer) take() []dispatch.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ready
	s.ready = nil
	return out
}

func (s *sequencer) droppedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
