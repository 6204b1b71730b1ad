package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davin/traceo/pkg/loop"
)

type stepCollector struct {
	events []Step
}

func (c *stepCollector) StepRecorded(_ uuid.UUID, step Step) {
	c.events = append(c.events, step)
}

func newTestRecorder(t *testing.T) (*Registry, uuid.UUID, *Recorder, *stepCollector) {
	t.Helper()
	r := newTestRegistry()
	id := r.Create([]loop.Message{{"role": "user", "content": "hi"}})
	collector := &stepCollector{}
	return r, id, NewRecorder(r, id, zerolog.Nop(), collector), collector
}

func TestRecorder_OnContent(t *testing.T) {
	r, id, rec, collector := newTestRecorder(t)

	rec.OnContent(loop.ContentBlock{
		Type:    "text",
		Payload: map[string]interface{}{"type": "text", "text": "hello"},
	})

	s, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)

	step := s.Steps[0]
	assert.Equal(t, StepTypeModelCall, step.Type)
	assert.Equal(t, StatusCompleted, step.Status)
	require.NotNil(t, step.EndTime)

	details, ok := step.Details.(ModelCallDetails)
	require.True(t, ok)
	assert.Equal(t, "text", details.ContentType)
	assert.Equal(t, "hello", details.Content["text"])

	require.Len(t, collector.events, 1)
	assert.Equal(t, step.ID, collector.events[0].ID)
}

func TestRecorder_OnToolResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, id, rec, _ := newTestRecorder(t)

		rec.OnToolResult(loop.ToolResult{Output: "42"}, "tool-1")

		s, err := r.Get(id)
		require.NoError(t, err)
		require.Len(t, s.Steps, 1)
		assert.Equal(t, StepTypeToolUse, s.Steps[0].Type)
		assert.Equal(t, StatusCompleted, s.Steps[0].Status)

		details, ok := s.Steps[0].Details.(ToolUseDetails)
		require.True(t, ok)
		assert.Equal(t, "tool-1", details.ToolID)
		assert.Equal(t, "42", details.Output)
		assert.False(t, details.ErrorPresent)
		assert.False(t, details.HasImage)
	})

	t.Run("tool error closes step failed with verbatim message", func(t *testing.T) {
		r, id, rec, _ := newTestRecorder(t)

		rec.OnToolResult(loop.ToolResult{Error: "permission denied"}, "tool-2")

		s, err := r.Get(id)
		require.NoError(t, err)
		require.Len(t, s.Steps, 1)
		assert.Equal(t, StatusFailed, s.Steps[0].Status)
		assert.Equal(t, "permission denied", s.Steps[0].Error)

		details := s.Steps[0].Details.(ToolUseDetails)
		assert.True(t, details.ErrorPresent)
	})

	t.Run("screenshot result", func(t *testing.T) {
		r, id, rec, _ := newTestRecorder(t)

		rec.OnToolResult(loop.ToolResult{Base64Image: "aGVsbG8="}, "tool-3")

		s, err := r.Get(id)
		require.NoError(t, err)
		details := s.Steps[0].Details.(ToolUseDetails)
		assert.True(t, details.HasImage)
	})
}

func TestRecorder_OnAPIResponse(t *testing.T) {
	r, id, rec, _ := newTestRecorder(t)

	rec.OnAPIResponse(loop.APIResponse{
		StatusCode: 200,
		Headers:    map[string]string{"request-id": "req_abc"},
	})

	s, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, StepTypeToolResult, s.Steps[0].Type)
	assert.Equal(t, StatusCompleted, s.Steps[0].Status)

	details, ok := s.Steps[0].Details.(APIResponseDetails)
	require.True(t, ok)
	assert.Equal(t, 200, details.StatusCode)
	assert.Equal(t, "req_abc", details.Headers["request-id"])
}

func TestRecorder_CallbacksPreserveOrder(t *testing.T) {
	r, id, rec, collector := newTestRecorder(t)

	rec.OnContent(loop.ContentBlock{Type: "text", Payload: map[string]interface{}{"text": "hello"}})
	rec.OnToolResult(loop.ToolResult{Output: "42"}, "tool-1")
	rec.OnAPIResponse(loop.APIResponse{StatusCode: 200})
	rec.OnContent(loop.ContentBlock{Type: "text", Payload: map[string]interface{}{"text": "done"}})

	s, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, s.Steps, 4)

	wantTypes := []StepType{StepTypeModelCall, StepTypeToolUse, StepTypeToolResult, StepTypeModelCall}
	for i, step := range s.Steps {
		assert.Equal(t, wantTypes[i], step.Type, "step %d", i)
		assert.True(t, step.Status.Terminal(), "step %d", i)
		require.NotNil(t, step.EndTime, "step %d", i)
	}

	// Observer saw the same steps in the same order.
	require.Len(t, collector.events, 4)
	for i := range collector.events {
		assert.Equal(t, s.Steps[i].ID, collector.events[i].ID)
	}
}

func TestRecorder_CloseWithNoOpenStepIsNoOp(t *testing.T) {
	r, id, rec, collector := newTestRecorder(t)

	assert.NotPanics(t, func() {
		rec.closeStep("")
		rec.closeStep("stray error")
	})

	s, err := r.Get(id)
	require.NoError(t, err)
	assert.Empty(t, s.Steps)
	assert.Empty(t, collector.events)
}

func TestRecorder_RecordFailure(t *testing.T) {
	r, id, rec, collector := newTestRecorder(t)

	rec.RecordFailure("rate limited")

	s, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)

	step := s.Steps[0]
	assert.Equal(t, StepTypeError, step.Type)
	assert.Equal(t, StatusFailed, step.Status)
	assert.Equal(t, "rate limited", step.Error)
	require.NotNil(t, step.EndTime)
	assert.Equal(t, step.StartTime, *step.EndTime)
	assert.NoError(t, step.Validate())

	require.Len(t, collector.events, 1)
}

func TestRecorder_VanishedSessionDoesNotPanic(t *testing.T) {
	r := newTestRegistry()
	rec := NewRecorder(r, uuid.New(), zerolog.Nop(), nil)

	assert.NotPanics(t, func() {
		rec.OnContent(loop.ContentBlock{Type: "text"})
		rec.RecordFailure("boom")
	})
}
