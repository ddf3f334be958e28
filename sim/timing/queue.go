package timing

import (
	"container/heap"
)

type queuedEvent struct {
	ScheduledEvent
	seq uint64
}

// eventQueue orders events by time. Events with the same time come out in the
// order they were pushed. It is not safe for concurrent use.
type eventQueue struct {
	events  eventHeap
	nextSeq uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.events = make([]*queuedEvent, 0)
	heap.Init(&q.events)
	return q
}

func (q *eventQueue) Push(evt ScheduledEvent) {
	q.nextSeq++
	heap.Push(&q.events, &queuedEvent{ScheduledEvent: evt, seq: q.nextSeq})
}

func (q *eventQueue) Pop() *queuedEvent {
	if q.events.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.events).(*queuedEvent)
}

func (q *eventQueue) Peek() *queuedEvent {
	if q.events.Len() == 0 {
		return nil
	}
	return q.events[0]
}

func (q *eventQueue) Len() int {
	return q.events.Len()
}

type eventHeap []*queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*queuedEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return evt
}

// twoLevelQueue keeps primary and secondary events apart. At equal times,
// primary events are always handled first.
type twoLevelQueue struct {
	primary   *eventQueue
	secondary *eventQueue
}

func newTwoLevelQueue() twoLevelQueue {
	return twoLevelQueue{
		primary:   newEventQueue(),
		secondary: newEventQueue(),
	}
}

func (q twoLevelQueue) Push(evt ScheduledEvent) {
	if evt.IsSecondary {
		q.secondary.Push(evt)
		return
	}

	q.primary.Push(evt)
}

func (q twoLevelQueue) Len() int {
	return q.primary.Len() + q.secondary.Len()
}

func (q twoLevelQueue) Peek() *queuedEvent {
	return q.pick(false)
}

func (q twoLevelQueue) Pop() *queuedEvent {
	return q.pick(true)
}

func (q twoLevelQueue) pick(remove bool) *queuedEvent {
	primary := q.primary.Peek()
	secondary := q.secondary.Peek()

	from := q.primary
	switch {
	case primary == nil && secondary == nil:
		return nil
	case primary == nil:
		from = q.secondary
	case secondary != nil && secondary.Time < primary.Time:
		from = q.secondary
	}

	if remove {
		return from.Pop()
	}
	return from.Peek()
}
