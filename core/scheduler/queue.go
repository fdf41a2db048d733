package scheduler

import (
	"container/heap"
	"sync"

	"acp-node/core/models"
)

// EventQueue is a priority queue of job events
type EventQueue struct {
	events []*QueuedEvent
	mu     sync.Mutex
}

// QueuedEvent wraps an event with its heap position
type QueuedEvent struct {
	Event *models.JobEvent
	Index int // For heap.Interface
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		events: make([]*QueuedEvent, 0),
	}
	heap.Init(q)
	return q
}

// Enqueue adds an event to the queue
func (q *EventQueue) Enqueue(event *models.JobEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	heap.Push(q, &QueuedEvent{Event: event})
}

// PopEvent removes and returns the most urgent event
func (q *EventQueue) PopEvent() *models.JobEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Len() == 0 {
		return nil
	}

	item := heap.Pop(q).(*QueuedEvent)
	return item.Event
}

// Size returns the number of queued events
func (q *EventQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Len()
}

// Len implements heap.Interface
func (q *EventQueue) Len() int {
	return len(q.events)
}

// Less orders by memo expiry, then arrival
func (q *EventQueue) Less(i, j int) bool {
	a, b := q.events[i].Event, q.events[j].Event
	da, db := a.Deadline(), b.Deadline()
	if da != nil && db != nil && !da.Equal(*db) {
		return da.Before(*db)
	}
	if da != nil && db == nil {
		return true
	}
	if da == nil && db != nil {
		return false
	}
	return a.ReceivedAt.Before(b.ReceivedAt)
}

// Swap implements heap.Interface
func (q *EventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
	q.events[i].Index = i
	q.events[j].Index = j
}

// Push implements heap.Interface
func (q *EventQueue) Push(x interface{}) {
	n := len(q.events)
	item := x.(*QueuedEvent)
	item.Index = n
	q.events = append(q.events, item)
}

// Pop implements heap.Interface
func (q *EventQueue) Pop() interface{} {
	old := q.events
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	q.events = old[0 : n-1]
	return item
}
