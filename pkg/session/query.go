package session

import (
	"time"

	"github.com/google/uuid"
)

// StepFilter narrows a step listing. Nil fields apply no filtering on that
// dimension.
type StepFilter struct {
	Type   *StepType
	Status *Status
}

func (f StepFilter) matches(s Step) bool {
	if f.Type != nil && s.Type != *f.Type {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	return true
}

// Steps returns a session's steps in insertion order, filtered by equality
// on type and/or status when the filter sets them.
func (r *Registry) Steps(id uuid.UUID, filter StepFilter) ([]Step, error) {
	snapshot, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(snapshot.Steps))
	for _, s := range snapshot.Steps {
		if filter.matches(s) {
			steps = append(steps, s)
		}
	}
	return steps, nil
}

// Summary aggregates a session's step trace. Count maps carry every enum
// value, zero-filled when absent.
type Summary struct {
	SessionID      uuid.UUID        `json:"session_id"`
	Status         Status           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	TotalDuration  string           `json:"total_duration"`
	TotalSteps     int              `json:"total_steps"`
	StepTypeCounts map[StepType]int `json:"step_type_counts"`
	StatusCounts   map[Status]int   `json:"status_counts"`
	MessagesCount  int              `json:"messages_count"`
}

// Summarize computes a summary over one consistent snapshot of the session.
// Total duration runs from session creation to now, not to the last update.
func (r *Registry) Summarize(id uuid.UUID) (Summary, error) {
	snapshot, err := r.Get(id)
	if err != nil {
		return Summary{}, err
	}

	typeCounts := make(map[StepType]int, len(StepTypes()))
	for _, t := range StepTypes() {
		typeCounts[t] = 0
	}
	statusCounts := make(map[Status]int, len(Statuses()))
	for _, s := range Statuses() {
		statusCounts[s] = 0
	}

	for _, step := range snapshot.Steps {
		typeCounts[step.Type]++
		statusCounts[step.Status]++
	}

	return Summary{
		SessionID:      snapshot.ID,
		Status:         snapshot.Status,
		CreatedAt:      snapshot.CreatedAt,
		UpdatedAt:      snapshot.UpdatedAt,
		TotalDuration:  time.Since(snapshot.CreatedAt).String(),
		TotalSteps:     len(snapshot.Steps),
		StepTypeCounts: typeCounts,
		StatusCounts:   statusCounts,
		MessagesCount:  len(snapshot.Messages),
	}, nil
}
