package travelmate

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func drain(t *testing.T, q *Queue) []StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []StreamEvent
	for {
		ev, ok := q.Next(ctx)
		if !ok {
			t.Fatal("Next returned before End event")
		}
		events = append(events, ev)
		if ev.Type == EventEnd {
			return events
		}
	}
}

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()
	q.Push(StreamEvent{Type: EventStatus, Text: "one"})
	q.Push(StreamEvent{Type: EventStatus, Text: "two"})
	q.Push(StreamEvent{Type: EventAgentMessage, Text: "three"})
	q.Finish()

	events := drain(t, q)
	want := []string{"one", "two", "three", ""}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Text != w {
			t.Errorf("event[%d].Text = %q, want %q", i, events[i].Text, w)
		}
	}
	if events[len(events)-1].Type != EventEnd {
		t.Errorf("last event = %v, want %v", events[len(events)-1].Type, EventEnd)
	}
}

func TestQueueFinishIdempotent(t *testing.T) {
	q := NewQueue()
	q.Push(StreamEvent{Type: EventStatus, Text: "a"})
	q.Finish()
	q.Finish()
	q.Finish()

	events := drain(t, q)
	ends := 0
	for _, ev := range events {
		if ev.Type == EventEnd {
			ends++
		}
	}
	if ends != 1 {
		t.Errorf("End events = %d, want exactly 1", ends)
	}
}

func TestQueuePushAfterFinishDropped(t *testing.T) {
	q := NewQueue()
	q.Finish()
	q.Push(StreamEvent{Type: EventStatus, Text: "late"})

	events := drain(t, q)
	if len(events) != 1 || events[0].Type != EventEnd {
		t.Errorf("events after finish = %+v, want only End", events)
	}
}

func TestQueueNextAfterEnd(t *testing.T) {
	q := NewQueue()
	q.Finish()
	drain(t, q)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, ok := q.Next(ctx); ok {
		t.Error("Next after End = ok, want not ok")
	}
}

func TestQueueNextContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Next(ctx); ok {
		t.Error("Next on empty queue with expired context = ok, want not ok")
	}
}

// Concurrent producer and consumer must observe push order regardless of
// scheduling. Stress-iterated to shake out interleavings.
func TestQueueConcurrentFIFO(t *testing.T) {
	const n = 500
	for iter := 0; iter < 20; iter++ {
		q := NewQueue()
		go func() {
			for i := 0; i < n; i++ {
				q.Push(StreamEvent{Type: EventStatus, Text: fmt.Sprintf("%d", i)})
			}
			q.Finish()
		}()

		events := drain(t, q)
		if len(events) != n+1 {
			t.Fatalf("iter %d: got %d events, want %d", iter, len(events), n+1)
		}
		for i := 0; i < n; i++ {
			if events[i].Text != fmt.Sprintf("%d", i) {
				t.Fatalf("iter %d: event[%d] = %q, out of order", iter, i, events[i].Text)
			}
		}
	}
}

func TestQueueStreamChannel(t *testing.T) {
	q := NewQueue()
	q.Push(StreamEvent{Type: EventStatus, Text: "hello"})
	q.Finish()

	var events []StreamEvent
	for ev := range q.Stream(context.Background()) {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Text != "hello" || events[1].Type != EventEnd {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestQueueStreamContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Stream(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A buffered event may still arrive; channel must close after.
			if _, ok := <-ch; ok {
				t.Error("stream channel did not close after context cancel")
			}
		}
	case <-time.After(time.Second):
		t.Error("stream channel not closed within 1s of cancel")
	}
}
