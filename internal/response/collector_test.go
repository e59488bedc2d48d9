package response

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/objctl/internal/testutil/testlog"
)

func TestFragmentsJoinInOrder(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	for _, f := range []string{"Hello, ", "world", "!"} {
		if err := c.Append(f); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	c.Complete()
	buf, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if buf.String() != "Hello, world!" {
		t.Fatalf("unexpected text: %q", buf.String())
	}
	if !buf.Final() || buf.State() != StateComplete {
		t.Fatalf("expected final complete buffer, got %s", buf.State())
	}
}

func TestChunkBoundariesArePreserved(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	_ = c.Append("[+] Page Ti")
	_ = c.Append("tle\t\t: Example\n[+] Val")
	_ = c.Append("")
	_ = c.Append("id From\n")
	c.Complete()
	buf, _ := c.Finalize()
	if buf.String() != "[+] Page Title\t\t: Example\n[+] Valid From\n" {
		t.Fatalf("unexpected join: %q", buf.String())
	}
	if len(buf.Fragments()) != 4 {
		t.Fatalf("fragments must not be deduplicated or merged: %d", len(buf.Fragments()))
	}
}

func TestFinalizeBeforeCompletion(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	_ = c.Append("partial")
	_, err := c.Finalize()
	var nyc *NotYetCompleteError
	if !errors.As(err, &nyc) || nyc.Fragments != 1 {
		t.Fatalf("expected NotYetCompleteError, got %v", err)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	_ = c.Append("a")
	c.Fail("module crashed")
	first, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := c.Append("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if c.Complete() {
		t.Fatalf("second terminal transition must be rejected")
	}
	second, _ := c.Finalize()
	if first.String() != second.String() || second.State() != StateFailed || second.Reason() != "module crashed" {
		t.Fatalf("finalize not stable: %+v vs %+v", first, second)
	}
}

func TestCancelKeepsPartialNonFinal(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	_ = c.Append("one ")
	_ = c.Append("two")
	if !c.Cancel() {
		t.Fatalf("cancel rejected")
	}
	if err := c.Append("three"); !errors.Is(err, ErrClosed) {
		t.Fatalf("append after cancel: %v", err)
	}
	buf, err := c.Finalize()
	if err != nil {
		t.Fatalf("finalize cancelled: %v", err)
	}
	if buf.Final() || !buf.Cancelled() {
		t.Fatalf("cancelled buffer must be non-final")
	}
	if buf.String() != "one two" {
		t.Fatalf("partial output lost: %q", buf.String())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	_ = c.Append("x")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	buf, err := c.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if buf.State() != StateOpen || buf.String() != "x" {
		t.Fatalf("unexpected snapshot: %+v", buf)
	}
}

func TestSingleAppenderSingleFinalizer(t *testing.T) {
	testlog.Start(t)
	c := NewCollector()
	var want strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&want, "%d,", i)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = c.Append(fmt.Sprintf("%d,", i))
		}
		c.Complete()
	}()

	buf, err := c.Wait(context.Background())
	wg.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if buf.String() != want.String() {
		t.Fatalf("ordering broken under concurrency")
	}
}
