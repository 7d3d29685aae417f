package eventstore

import "time"

// Event represents something that happened during an index run.
type Event interface {
	// ID returns the store-assigned sequence number, zero until persisted.
	ID() int64
	// RunID returns the identifier of the run this event belongs to.
	RunID() string
	Type() string
	Timestamp() time.Time
	// Payload returns the event data as JSON.
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventRunID     string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) RunID() string               { return e.EventRunID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
