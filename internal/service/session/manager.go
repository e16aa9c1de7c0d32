package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Manager owns every live session. Sessions are process-local and are never persisted.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	idleTTL  time.Duration
	now      func() time.Time
}

// NewManager creates a manager that forgets sessions idle for longer than idleTTL.
func NewManager(idleTTL time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Create provisions a new empty session.
func (m *Manager) Create() *State {
	state := newState(uuid.NewString(), m.now())

	m.mu.Lock()
	m.sessions[state.ID] = state
	m.mu.Unlock()

	log.Debug().Str("component", "session").Str("session", state.ID).Msg("session created")
	return state
}

// Get returns a live session and marks it as recently used.
func (m *Manager) Get(id string) (*State, bool) {
	if id == "" {
		return nil, false
	}

	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	state.touch(m.now())
	return state, true
}

// GetOrCreate resolves id, falling back to a fresh session for unknown or expired ids.
func (m *Manager) GetOrCreate(id string) (*State, bool) {
	if state, ok := m.Get(id); ok {
		return state, false
	}
	return m.Create(), true
}

// Delete ends a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, state := range m.sessions {
		if state.idleSince(now) > m.idleTTL {
			delete(m.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		log.Info().Str("component", "session").Int("expired", removed).Int("live", len(m.sessions)).Msg("swept idle sessions")
	}
	return removed
}

// StartSweeper runs Sweep on the given cron schedule until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	log.Info().Str("component", "session").Str("schedule", schedule).Dur("idle_ttl", m.idleTTL).Msg("session sweeper started")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
