// Package event defines the immutable analytics event model: the closed
// property value variant, insertion-ordered properties, structural
// validation, and session/identity enrichment.
//
// Events are immutable once created - enrichment returns a new event
// rather than mutating the original.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one tracked occurrence flowing through the pipeline.
type Event struct {
	// ID uniquely identifies the event for downstream dedup.
	ID string `json:"id"`

	// Name is the semantic event name (1-100 characters).
	Name string `json:"name"`

	// Properties carries the caller-supplied payload.
	Properties *Properties `json:"properties,omitempty"`

	// CreatedAt is the client-side creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// SessionID is the session active when the event was enriched.
	SessionID string `json:"session_id,omitempty"`

	// UserID is the identified user, if any.
	UserID string `json:"user_id,omitempty"`
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id        string
	timestamp time.Time
}

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithTimestamp sets a specific creation timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// New creates an event with the given name and properties.
// The properties are cloned so later mutation by the caller cannot
// reach a queued event.
func New(name string, props *Properties, opts ...Option) Event {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return Event{
		ID:         cfg.id,
		Name:       name,
		Properties: props.Clone(),
		CreatedAt:  cfg.timestamp,
	}
}

// Enrich returns a copy of e stamped with the session and user active
// at enrichment time. Identity is snapshotted here, not at the original
// track call, so a concurrent identify cannot race the stamp.
func Enrich(e Event, sessionID, userID string) Event {
	e.SessionID = sessionID
	e.UserID = userID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

// Marshal serializes the event to JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
