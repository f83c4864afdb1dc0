// Package pubsub provides a generic publish/subscribe event system used to
// fan out log entries and run lifecycle events to interested listeners.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened.
type EventType string

const (
	// LoggedEvent carries one formatted log line.
	LoggedEvent EventType = "logged"

	// Run lifecycle. A run publishes StartedEvent once, then exactly one of
	// FinishedEvent or FailedEvent.
	StartedEvent  EventType = "started"
	FinishedEvent EventType = "finished"
	FailedEvent   EventType = "failed"
)

// Terminal reports whether t ends a run.
func (t EventType) Terminal() bool {
	return t == FinishedEvent || t == FailedEvent
}

// Event is a published payload stamped with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher accepts events. Implementations must not block the caller.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
