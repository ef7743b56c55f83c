// Package session owns session lifecycle and user identity for the
// tracking engine. A Manager holds at most one active session and is
// safe for concurrent use; every method is a short critical section,
// so callers never block on pipeline activity.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/tracklet/pkg/tracklet/event"
)

// State is the session lifecycle state.
type State int

const (
	// StateNotStarted means no session has been started yet.
	StateNotStarted State = iota
	// StateActive means a session is in progress.
	StateActive
	// StateEnded means the last session has ended.
	StateEnded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session is one tracked session. Events hold only its ID, never a
// live pointer, so an ended session cannot be mutated through an event.
type Session struct {
	ID         string
	UserID     string
	StartedAt  time.Time
	Properties *event.Properties
}

// Snapshot is the identity context stamped onto events at enrichment time.
type Snapshot struct {
	SessionID string
	UserID    string
}

// Manager owns session and identity state.
type Manager struct {
	mu        sync.Mutex
	state     State
	current   Session
	userID    string
	userProps *event.Properties
	now       func() time.Time
}

// NewManager creates a manager with no active session.
func NewManager() *Manager {
	return &Manager{
		state:     StateNotStarted,
		userProps: event.NewProperties(),
		now:       time.Now,
	}
}

// Start begins a new session. If a session is already active it is
// ended and replaced; callers re-entering Start get a fresh session ID.
// Returns the new session ID.
func (m *Manager) Start() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = Session{
		ID:         uuid.New().String(),
		UserID:     m.userID,
		StartedAt:  m.now().UTC(),
		Properties: event.NewProperties(),
	}
	m.state = StateActive
	return m.current.ID
}

// End finishes the active session. Ending when no session is active is
// a no-op; the reported ID is empty in that case.
func (m *Manager) End() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return ""
	}
	id := m.current.ID
	m.state = StateEnded
	return id
}

// Identify sets the user identity. Valid in any state; it never changes
// the session lifecycle. Properties merge into the identity properties
// with last-write-wins per key.
func (m *Manager) Identify(userID string, props *event.Properties) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.userID = userID
	m.userProps.Merge(props)
	if m.state == StateActive {
		m.current.UserID = userID
	}
}

// SetUserProperties merges properties into the active session
// (last-write-wins per key). Without an active session the merge goes
// to the identity properties so it is not lost.
func (m *Manager) SetUserProperties(props *event.Properties) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateActive {
		m.current.Properties.Merge(props)
		return
	}
	m.userProps.Merge(props)
}

// Snapshot returns the identity context for event enrichment.
// The session ID is empty when no session is active.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{UserID: m.userID}
	if m.state == StateActive {
		snap.SessionID = m.current.ID
	}
	return snap
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSessionID returns the active session ID, or empty when none.
func (m *Manager) CurrentSessionID() string {
	return m.Snapshot().SessionID
}

// CurrentUserID returns the identified user ID, or empty when anonymous.
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Duration returns the elapsed time since the active session started,
// or zero when no session is active.
func (m *Manager) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return 0
	}
	return m.now().UTC().Sub(m.current.StartedAt)
}
