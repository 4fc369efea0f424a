// Package stream forwards incremental provider output to a consumer
// as an ordered chunk stream.
//
// A Relay is a single-producer, single-consumer pipeline over a
// bounded channel: a slow consumer blocks the producer's Push, which
// propagates backpressure up to the provider read loop instead of
// buffering without bound. The producer side drives a small state
// machine; the consumer just ranges over Chunks and inspects the
// terminal state afterwards.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// State is the relay lifecycle state.
type State int

const (
	// StatePending means no chunk has arrived yet.
	StatePending State = iota
	// StateStreaming means at least one chunk was forwarded.
	StateStreaming
	// StateCompleted means the provider finished the stream cleanly.
	StateCompleted
	// StateAborted means the caller cancelled mid-stream.
	StateAborted
	// StateFailed means the transport failed mid-stream.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrFinished is returned by Push after the relay reached a terminal
// state.
var ErrFinished = errors.New("relay already finished")

// Relay is one in-flight stream. Push and Finish must be called from
// the same (producer) goroutine; Chunks, State, Err and Consolidated
// are safe from any goroutine.
type Relay struct {
	ch chan string

	mu     sync.Mutex
	state  State
	err    error
	chunks []string
}

// New creates a relay with the given channel buffer. A buffer of zero
// makes every Push rendezvous with the consumer.
func New(buffer int) *Relay {
	return &Relay{ch: make(chan string, buffer)}
}

// Chunks returns the consumer side of the stream. The channel closes
// when the relay reaches a terminal state.
func (r *Relay) Chunks() <-chan string {
	return r.ch
}

// Push forwards one chunk, blocking while the consumer is behind.
// The first push moves the relay from pending to streaming. Push
// returns ctx.Err() when the caller's context is cancelled while
// waiting on the consumer.
func (r *Relay) Push(ctx context.Context, text string) error {
	r.mu.Lock()
	switch r.state {
	case StatePending:
		r.state = StateStreaming
	case StateStreaming:
	default:
		r.mu.Unlock()
		return ErrFinished
	}
	r.chunks = append(r.chunks, text)
	r.mu.Unlock()

	select {
	case r.ch <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish moves the relay to its terminal state and closes the chunk
// channel. A nil error completes the stream, context.Canceled marks
// it aborted, anything else marks it failed. Finish is idempotent;
// only the first call takes effect.
func (r *Relay) Finish(err error) {
	r.mu.Lock()
	if r.state == StateCompleted || r.state == StateAborted || r.state == StateFailed {
		r.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		r.state = StateCompleted
	case errors.Is(err, context.Canceled):
		r.state = StateAborted
		r.err = err
	default:
		r.state = StateFailed
		r.err = err
	}
	r.mu.Unlock()

	close(r.ch)
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the terminal error, nil unless the relay failed or was
// aborted.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Consolidated returns the concatenation of every pushed chunk, in
// push order. Meaningful after the relay completed; on an aborted or
// failed relay it holds whatever was forwarded before the end.
func (r *Relay) Consolidated() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, c := range r.chunks {
		sb.WriteString(c)
	}
	return sb.String()
}
