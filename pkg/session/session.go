package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davin/traceo/pkg/loop"
)

// Session is one end-to-end conversation run: the messages exchanged with the
// sampling loop plus the ordered trace of steps it produced.
type Session struct {
	ID        uuid.UUID      `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Steps     []Step         `json:"steps"`
	Messages  []loop.Message `json:"messages"`
	Status    Status         `json:"status"`
}

// newSession builds a pending session holding a copy of the caller's
// messages.
func newSession(messages []loop.Message) Session {
	now := time.Now()
	msgs := make([]loop.Message, len(messages))
	copy(msgs, messages)
	return Session{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     []Step{},
		Messages:  msgs,
		Status:    StatusPending,
	}
}

// clone returns a snapshot safe to hand out while the original keeps
// mutating. Step and message values are copied; closed steps are immutable so
// sharing their interior pointers is fine.
func (s Session) clone() Session {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	copy(out.Steps, s.Steps)
	out.Messages = make([]loop.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Validate checks session-level invariants plus every step's.
func (s Session) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid session status: %s", s.Status)
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("session created_at is not set")
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		return fmt.Errorf("session updated_at precedes created_at")
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
