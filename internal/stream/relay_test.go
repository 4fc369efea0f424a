package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRelayLifecycle(t *testing.T) {
	t.Run("pending until first chunk", func(t *testing.T) {
		r := New(4)
		if r.State() != StatePending {
			t.Errorf("state = %v, want pending", r.State())
		}

		if err := r.Push(context.Background(), "hi"); err != nil {
			t.Fatalf("Push: %v", err)
		}
		if r.State() != StateStreaming {
			t.Errorf("state = %v, want streaming", r.State())
		}
		r.Finish(nil)
	})

	t.Run("completed consolidates in order", func(t *testing.T) {
		r := New(8)
		chunks := []string{"The ", "quick ", "brown ", "fox"}

		go func() {
			for _, c := range chunks {
				if err := r.Push(context.Background(), c); err != nil {
					t.Errorf("Push: %v", err)
					return
				}
			}
			r.Finish(nil)
		}()

		var got []string
		for c := range r.Chunks() {
			got = append(got, c)
		}

		if strings.Join(got, "") != strings.Join(chunks, "") {
			t.Errorf("received %q, want %q", got, chunks)
		}
		for i := range got {
			if got[i] != chunks[i] {
				t.Errorf("chunk %d = %q, want %q (order violated)", i, got[i], chunks[i])
			}
		}
		if r.State() != StateCompleted {
			t.Errorf("state = %v, want completed", r.State())
		}
		if r.Consolidated() != "The quick brown fox" {
			t.Errorf("consolidated = %q", r.Consolidated())
		}
		if r.Err() != nil {
			t.Errorf("err = %v, want nil", r.Err())
		}
	})

	t.Run("cancellation marks aborted", func(t *testing.T) {
		r := New(2)
		_ = r.Push(context.Background(), "partial")
		r.Finish(context.Canceled)

		if r.State() != StateAborted {
			t.Errorf("state = %v, want aborted", r.State())
		}
		// Drain the closed channel.
		for range r.Chunks() {
		}
	})

	t.Run("transport error marks failed", func(t *testing.T) {
		r := New(2)
		_ = r.Push(context.Background(), "partial")
		cause := errors.New("connection reset")
		r.Finish(cause)

		if r.State() != StateFailed {
			t.Errorf("state = %v, want failed", r.State())
		}
		if !errors.Is(r.Err(), cause) {
			t.Errorf("err = %v, want %v", r.Err(), cause)
		}
		for range r.Chunks() {
		}
	})

	t.Run("finish is idempotent", func(t *testing.T) {
		r := New(1)
		r.Finish(nil)
		r.Finish(errors.New("late failure"))

		if r.State() != StateCompleted {
			t.Errorf("state = %v, want completed (first finish wins)", r.State())
		}
	})

	t.Run("push after finish rejected", func(t *testing.T) {
		r := New(1)
		r.Finish(nil)
		if err := r.Push(context.Background(), "late"); !errors.Is(err, ErrFinished) {
			t.Errorf("expected ErrFinished, got %v", err)
		}
	})
}

func TestRelayBackpressure(t *testing.T) {
	t.Run("push blocks on slow consumer", func(t *testing.T) {
		r := New(1)
		_ = r.Push(context.Background(), "one") // fills the buffer

		pushed := make(chan struct{})
		go func() {
			_ = r.Push(context.Background(), "two") // blocks until consumed
			close(pushed)
		}()

		select {
		case <-pushed:
			t.Fatal("push should block while buffer is full")
		case <-time.After(20 * time.Millisecond):
		}

		<-r.Chunks() // make room
		select {
		case <-pushed:
		case <-time.After(time.Second):
			t.Fatal("push did not resume after consumer progress")
		}

		<-r.Chunks()
		r.Finish(nil)
	})

	t.Run("cancelled push returns promptly", func(t *testing.T) {
		r := New(0) // rendezvous: push blocks without a consumer
		ctx, cancel := context.WithCancel(context.Background())

		errc := make(chan error, 1)
		go func() {
			errc <- r.Push(ctx, "stuck")
		}()

		cancel()
		select {
		case err := <-errc:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("push did not observe cancellation")
		}

		r.Finish(context.Canceled)
	})
}
