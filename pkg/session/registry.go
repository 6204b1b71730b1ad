package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/pkg/loop"
)

// ErrNotFound is returned when a session id is not in the registry.
var ErrNotFound = errors.New("session not found")

// Registry is the process-wide in-memory session store. Each session has its
// own lock, so runs for different sessions never block each other. Sessions
// are kept until the process exits.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	logger  zerolog.Logger
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	observability.EnsureRegistered()
	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		logger:  logger.With().Str("component", "session-registry").Logger(),
	}
}

// Create stores a fresh pending session holding the given messages and
// returns its id.
func (r *Registry) Create(messages []loop.Message) uuid.UUID {
	e := &entry{session: newSession(messages)}

	r.mu.Lock()
	r.entries[e.session.ID] = e
	size := len(r.entries)
	r.mu.Unlock()

	observability.SetActiveSessions(size)
	r.logger.Debug().
		Str("session_id", e.session.ID.String()).
		Int("messages", len(e.session.Messages)).
		Msg("Session created")

	return e.session.ID
}

func (r *Registry) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Get returns a point-in-time snapshot of a session.
func (r *Registry) Get(id uuid.UUID) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	snapshot := e.session.clone()
	e.mu.Unlock()
	return snapshot, nil
}

// Mutate applies fn to a session under that session's lock. Mutations for
// one session are serialized; other sessions are unaffected. fn must bump
// UpdatedAt itself when it changes status or messages; step appends leave
// it alone.
func (r *Registry) Mutate(id uuid.UUID, fn func(*Session)) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	fn(&e.session)
	e.mu.Unlock()
	return nil
}

// Touch advances a session's UpdatedAt to now.
func Touch(s *Session) {
	s.UpdatedAt = time.Now()
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Info is a lightweight session listing entry.
type Info struct {
	ID           uuid.UUID `json:"id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	StepCount    int       `json:"step_count"`
	MessageCount int       `json:"message_count"`
}

// List returns summaries of every stored session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		infos = append(infos, Info{
			ID:           e.session.ID,
			Status:       e.session.Status,
			CreatedAt:    e.session.CreatedAt,
			UpdatedAt:    e.session.UpdatedAt,
			StepCount:    len(e.session.Steps),
			MessageCount: len(e.session.Messages),
		})
		e.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}
