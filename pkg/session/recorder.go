package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/pkg/loop"
)

// StepObserver is notified whenever a step reaches a terminal status. Used by
// the API layer to stream step events to websocket clients.
type StepObserver interface {
	StepRecorded(sessionID uuid.UUID, step Step)
}

// Recorder translates sampling loop callbacks into step records on one
// session. It tracks at most one open step at a time.
//
// The sampling loop is assumed to emit callbacks sequentially for a given
// run; a Recorder is not safe for concurrent callback invocations.
type Recorder struct {
	registry  *Registry
	sessionID uuid.UUID
	logger    zerolog.Logger
	observer  StepObserver

	open *uuid.UUID
}

var _ loop.Callbacks = (*Recorder)(nil)

// NewRecorder binds a recorder to one session. observer may be nil.
func NewRecorder(registry *Registry, sessionID uuid.UUID, logger zerolog.Logger, observer StepObserver) *Recorder {
	return &Recorder{
		registry:  registry,
		sessionID: sessionID,
		logger:    logger.With().Str("session_id", sessionID.String()).Logger(),
		observer:  observer,
	}
}

// OnContent records a model_call step for one emitted content block. Content
// emission cannot fail from the recorder's point of view, so the step closes
// completed immediately.
func (r *Recorder) OnContent(block loop.ContentBlock) {
	r.openStep(StepTypeModelCall, ModelCallDetails{
		ContentType: block.Type,
		Content:     block.Payload,
	})
	r.closeStep("")
}

// OnToolResult records a tool_use step, failed when the tool result carries
// an error.
func (r *Recorder) OnToolResult(result loop.ToolResult, toolID string) {
	r.openStep(StepTypeToolUse, ToolUseDetails{
		ToolID:       toolID,
		Output:       result.Output,
		ErrorPresent: result.Error != "",
		HasImage:     result.Base64Image != "",
	})
	r.closeStep(result.Error)
}

// OnAPIResponse records a tool_result step summarizing one provider API
// exchange.
func (r *Recorder) OnAPIResponse(resp loop.APIResponse) {
	r.openStep(StepTypeToolResult, APIResponseDetails{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
	})
	r.closeStep("")
}

// RecordFailure appends a synthetic error step for a run that failed. The
// step is born terminal: start and end times are identical.
func (r *Recorder) RecordFailure(msg string) {
	now := time.Now()
	step := Step{
		ID:        uuid.New(),
		Type:      StepTypeError,
		Status:    StatusFailed,
		StartTime: now,
		EndTime:   &now,
		Error:     msg,
	}

	if err := r.registry.Mutate(r.sessionID, func(s *Session) {
		s.Steps = append(s.Steps, step)
	}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record error step")
		return
	}

	observability.RecordStep(string(step.Type), string(step.Status))
	r.notify(step)
}

func (r *Recorder) openStep(t StepType, details StepDetails) {
	step := NewStep(t, details)

	if err := r.registry.Mutate(r.sessionID, func(s *Session) {
		s.Steps = append(s.Steps, step)
	}); err != nil {
		r.logger.Warn().Err(err).Str("type", string(t)).Msg("Failed to open step")
		return
	}

	id := step.ID
	r.open = &id
}

// closeStep finalizes the current open step. Called with nothing open it is
// a no-op: an unexpected callback ordering must not take the loop down.
func (r *Recorder) closeStep(errMsg string) {
	if r.open == nil {
		return
	}
	id := *r.open
	r.open = nil

	var closed Step
	if err := r.registry.Mutate(r.sessionID, func(s *Session) {
		for i := len(s.Steps) - 1; i >= 0; i-- {
			if s.Steps[i].ID == id {
				s.Steps[i].Close(errMsg)
				closed = s.Steps[i]
				return
			}
		}
	}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to close step")
		return
	}

	if closed.ID == uuid.Nil {
		return
	}

	observability.RecordStep(string(closed.Type), string(closed.Status))
	r.notify(closed)
}

func (r *Recorder) notify(step Step) {
	if r.observer == nil {
		return
	}
	r.observer.StepRecorded(r.sessionID, step)
}
