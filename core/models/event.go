package models

import "time"

// EventType identifies an inbound job event
type EventType string

const (
	EventNewTask  EventType = "new_task"
	EventEvaluate EventType = "evaluate"
)

// JobEvent is a push notification about a job that needs attention
type JobEvent struct {
	ID         string
	Type       EventType
	Job        JobWire
	MemoToSign *uint64
	ReceivedAt time.Time
}

// Deadline returns the expiry of the memo the event refers to, if any.
// Events without an expiry sort after those that have one.
func (e JobEvent) Deadline() *time.Time {
	var target *MemoWire
	for i := range e.Job.Memos {
		m := &e.Job.Memos[i]
		if e.MemoToSign != nil && m.ID == *e.MemoToSign {
			target = m
			break
		}
	}
	if target == nil && len(e.Job.Memos) > 0 {
		target = &e.Job.Memos[len(e.Job.Memos)-1]
	}
	if target == nil || target.Expiry == nil || *target.Expiry == 0 {
		return nil
	}
	t := time.Unix(*target.Expiry, 0)
	return &t
}
