package poller

import (
	"sync"
	"time"

	"github.com/plantpulse/plant-server/internal/metrics"
)

var ErrMaxSessionsReached = &SessionError{"maximum sessions reached"}

// SessionError represents a session registry error
type SessionError struct {
	msg string
}

func (e *SessionError) Error() string {
	return e.msg
}

// Session pairs a controller with bookkeeping about its owner.
type Session struct {
	UserID     string
	Controller *Controller
	StartedAt  time.Time
}

// Registry tracks the active polling session per user. One user holds at
// most one session; the session's controller holds at most one loop.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	maxSess  int
}

// NewRegistry creates a registry with a session cap.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		maxSess:  maxSessions,
	}
}

// Get returns the session for a user.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, exists := r.sessions[userID]
	return session, exists
}

// GetOrCreate returns the user's session, creating one with the supplied
// constructor if absent.
func (r *Registry) GetOrCreate(userID string, create func() *Controller) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, exists := r.sessions[userID]; exists {
		return session, nil
	}

	if len(r.sessions) >= r.maxSess {
		return nil, ErrMaxSessionsReached
	}

	session := &Session{
		UserID:     userID,
		Controller: create(),
		StartedAt:  time.Now(),
	}
	r.sessions[userID] = session
	metrics.ActiveSessions.Set(float64(len(r.sessions)))

	return session, nil
}

// Remove tears a session down, cancelling its polling loop.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[userID]
	if !exists {
		return
	}

	session.Controller.Close()
	delete(r.sessions, userID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll cancels every session's loop. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, session := range r.sessions {
		session.Controller.Close()
		delete(r.sessions, userID)
	}
	metrics.ActiveSessions.Set(0)
}

// Stats returns registry statistics.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	polling := 0
	for _, session := range r.sessions {
		if session.Controller.Polling() {
			polling++
		}
	}

	return RegistryStats{
		TotalSessions:   len(r.sessions),
		PollingSessions: polling,
		MaxSessions:     r.maxSess,
	}
}

// RegistryStats contains statistics about the session registry.
type RegistryStats struct {
	TotalSessions   int
	PollingSessions int
	MaxSessions     int
}
