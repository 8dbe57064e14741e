package moderation

import "context"

// Event describes a change to a live entity. Live is false when the live
// row was removed.
type Event struct {
	Kind string
	ID   int64
	Live bool
}

// Hook receives entity change notifications after the enclosing
// transaction commits. Hooks must not fail the action: implementations
// log their own errors.
type Hook interface {
	EntityChanged(ctx context.Context, ev Event)
}

// eventLog collects events during a transaction so they fire only once
// the transaction has committed.
type eventLog struct {
	events []Event
}

func (l *eventLog) add(kind string, id int64, live bool) {
	l.events = append(l.events, Event{Kind: kind, ID: id, Live: live})
}
