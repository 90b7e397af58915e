package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRunsQueuedJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, QueueSize: 8})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := d.Enqueue(context.Background(), "relay.backup", "copyMessage", func() error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	d.Close()
	if ran.Load() != 5 {
		t.Fatalf("expected 5 runs, got %d", ran.Load())
	}
	if err := d.Enqueue(context.Background(), "relay.backup", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	d.Close()
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, MaxDuration: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	if err := d.Enqueue(ctx, "relay.backup", "", func() error { ran.Store(true); return nil }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()
	if !ran.Load() {
		t.Fatal("job queued with a cancelled context should still run")
	}
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	_ = d.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	if err := d.Enqueue(context.Background(), "queued", "", func() error { return nil }); err != nil {
		t.Fatalf("second job should fit the queue: %v", err)
	}
	if err := d.Enqueue(context.Background(), "overflow", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(release)
	d.Close()
	if d.ErrorCount() != 1 {
		t.Fatalf("dropped job should count as an error, got %d", d.ErrorCount())
	}
}

func TestDispatcherRetriesOnlyTransientFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var dialCalls, apiCalls atomic.Int32
	_ = d.Enqueue(context.Background(), "dial", "", func() error {
		if dialCalls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
		}
		return nil
	})
	_ = d.Enqueue(context.Background(), "api", "", func() error {
		apiCalls.Add(1)
		return &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	})
	d.Close()
	if dialCalls.Load() != 3 {
		t.Fatalf("dial failure should be retried until success, got %d calls", dialCalls.Load())
	}
	if apiCalls.Load() != 1 {
		t.Fatalf("api errors must not be retried, got %d calls", apiCalls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("expected 1 error, got %d", d.ErrorCount())
	}
}

func TestRetryDelay(t *testing.T) {
	if wait, ok := retryDelay(tele.FloodError{RetryAfter: 3}, 1, time.Second); !ok || wait != 3*time.Second {
		t.Fatalf("flood: got %v %v", wait, ok)
	}
	dial := &net.OpError{Op: "dial", Err: errors.New("refused")}
	if wait, ok := retryDelay(dial, 2, time.Second); !ok || wait != 2*time.Second {
		t.Fatalf("dial: got %v %v", wait, ok)
	}
	if _, ok := retryDelay(errors.New("Bad Request"), 1, time.Second); ok {
		t.Fatal("plain errors must not be retried")
	}
}

func TestRedactToken(t *testing.T) {
	err := fmt.Errorf("post https://api.telegram.org/bot123:ABC-def/sendMessage: refused")
	if got := redactToken(err); got != "post https://api.telegram.org/bot<redacted>/sendMessage: refused" {
		t.Fatalf("token leaked: %s", got)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{&tele.Error{Code: 400, Description: "Bad Request"}, "http_4xx"},
		{&tele.Error{Code: 403, Description: "Forbidden: bot was kicked"}, "forbidden"},
		{errors.New("telegram: internal (502)"), "http_5xx"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{errors.New("weird"), "unknown"},
	}
	for _, tc := range cases {
		if got := classifyError(tc.err); got != tc.want {
			t.Fatalf("classifyError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
