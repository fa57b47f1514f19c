package travelmate

import (
	"context"
	"sync"
)

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventStatus carries a human-readable progress line (authorization
	// required, authorization succeeded, failure explanations).
	EventStatus StreamEventType = "status"
	// EventAuthURL carries the authorization URL the user must open.
	EventAuthURL StreamEventType = "authorization-url"
	// EventAgentMessage carries a full agent response payload.
	EventAgentMessage StreamEventType = "agent-message"
	// EventEnd is the end-of-stream sentinel. Exactly one is emitted per
	// run and it is always the last event.
	EventEnd StreamEventType = "end"
)

// StreamEvent is a typed event pushed by the run and drained by the caller.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Text carries the status line, URL, or agent response (empty for end).
	Text string `json:"text,omitempty"`
}

// Queue is an ordered, unbounded, single-producer/single-consumer event
// stream. Push never blocks. Finish is idempotent and appends the single
// End sentinel; pushes after Finish are dropped so End stays last.
//
// One goroutine produces, one consumes. Next must not be called from two
// readers concurrently.
type Queue struct {
	mu       sync.Mutex
	events   []StreamEvent
	finished bool // End enqueued, no further pushes accepted
	drained  bool // End handed to the consumer

	finish sync.Once
	ready  chan struct{} // capacity 1, signals the consumer
}

// NewQueue creates an empty event queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends ev to the stream. Never blocks. Events pushed after Finish
// are silently dropped.
func (q *Queue) Push(ev StreamEvent) {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.signal()
}

// Finish terminates the stream with a single End event. Safe to call more
// than once; only the first call has effect.
func (q *Queue) Finish() {
	q.finish.Do(func() {
		q.mu.Lock()
		q.events = append(q.events, StreamEvent{Type: EventEnd})
		q.finished = true
		q.mu.Unlock()
		q.signal()
	})
}

// Next blocks until an event is available or ctx is cancelled. The second
// return is false once the End event has already been delivered or when
// ctx expires.
func (q *Queue) Next(ctx context.Context) (StreamEvent, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events = q.events[1:]
			if ev.Type == EventEnd {
				q.drained = true
			}
			q.mu.Unlock()
			return ev, true
		}
		done := q.drained
		q.mu.Unlock()
		if done {
			return StreamEvent{}, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return StreamEvent{}, false
		}
	}
}

// Stream drains the queue into a channel, closing it after the End event
// or when ctx is cancelled. Convenience wrapper around Next for range
// consumption; the single-consumer rule still applies.
func (q *Queue) Stream(ctx context.Context) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for {
			ev, ok := q.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == EventEnd {
				return
			}
		}
	}()
	return out
}

// signal wakes the consumer without blocking the producer.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
