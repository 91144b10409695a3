package engine

import "github.com/roach88/eca/internal/plugin"

// pendingEvent is a host event published by an action, waiting to be
// dispatched once the publishing walk has finished.
type pendingEvent struct {
	event plugin.HostEvent
	depth int
}

// eventQueue is the FIFO of re-entrant events owned by one invocation.
//
// Each invocation drains its own queue right after its walk returns, and
// the invocations started by the drain own queues of their own. The result
// is depth-first re-entrancy on the caller's stack with no goroutines, so
// the queue needs no locking.
type eventQueue struct {
	events []pendingEvent
}

// Enqueue adds an event to the back of the queue.
func (q *eventQueue) Enqueue(e pendingEvent) {
	q.events = append(q.events, e)
}

// TryDequeue removes and returns the front event.
func (q *eventQueue) TryDequeue() (pendingEvent, bool) {
	if len(q.events) == 0 {
		return pendingEvent{}, false
	}
	e := q.events[0]
	// Drop the payload reference so drained events can be collected.
	q.events[0] = pendingEvent{}
	q.events = q.events[1:]
	return e, true
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	return len(q.events)
}
