package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davin/traceo/pkg/loop"
)

func seedSteps(t *testing.T) (*Registry, uuid.UUID) {
	t.Helper()
	r := newTestRegistry()
	id := r.Create([]loop.Message{{"role": "user", "content": "hi"}})
	rec := NewRecorder(r, id, zerolog.Nop(), nil)

	rec.OnContent(loop.ContentBlock{Type: "text", Payload: map[string]interface{}{"text": "a"}})
	rec.OnToolResult(loop.ToolResult{Output: "ok"}, "tool-1")
	rec.OnToolResult(loop.ToolResult{Error: "timeout"}, "tool-2")
	rec.OnAPIResponse(loop.APIResponse{StatusCode: 200})
	rec.OnContent(loop.ContentBlock{Type: "text", Payload: map[string]interface{}{"text": "b"}})

	return r, id
}

func ptrType(t StepType) *StepType { return &t }
func ptrStatus(s Status) *Status   { return &s }

func TestSteps_NoFilter(t *testing.T) {
	r, id := seedSteps(t)

	steps, err := r.Steps(id, StepFilter{})
	require.NoError(t, err)
	require.Len(t, steps, 5)

	wantTypes := []StepType{
		StepTypeModelCall, StepTypeToolUse, StepTypeToolUse, StepTypeToolResult, StepTypeModelCall,
	}
	for i, s := range steps {
		assert.Equal(t, wantTypes[i], s.Type, "step %d", i)
	}
}

func TestSteps_TypeFilterIsOrderedSubsequence(t *testing.T) {
	r, id := seedSteps(t)

	all, err := r.Steps(id, StepFilter{})
	require.NoError(t, err)

	filtered, err := r.Steps(id, StepFilter{Type: ptrType(StepTypeToolUse)})
	require.NoError(t, err)

	var want []Step
	for _, s := range all {
		if s.Type == StepTypeToolUse {
			want = append(want, s)
		}
	}
	assert.Equal(t, want, filtered)
}

func TestSteps_StatusFilter(t *testing.T) {
	r, id := seedSteps(t)

	failed, err := r.Steps(id, StepFilter{Status: ptrStatus(StatusFailed)})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "timeout", failed[0].Error)
}

func TestSteps_CombinedFilter(t *testing.T) {
	r, id := seedSteps(t)

	steps, err := r.Steps(id, StepFilter{
		Type:   ptrType(StepTypeToolUse),
		Status: ptrStatus(StatusCompleted),
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)

	details := steps[0].Details.(ToolUseDetails)
	assert.Equal(t, "tool-1", details.ToolID)
}

func TestSteps_UnknownSession(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Steps(uuid.New(), StepFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummarize(t *testing.T) {
	r, id := seedSteps(t)

	summary, err := r.Summarize(id)
	require.NoError(t, err)

	assert.Equal(t, id, summary.SessionID)
	assert.Equal(t, 5, summary.TotalSteps)
	assert.Equal(t, 1, summary.MessagesCount)
	assert.NotEmpty(t, summary.TotalDuration)

	assert.Equal(t, map[StepType]int{
		StepTypeModelCall:  2,
		StepTypeToolUse:    2,
		StepTypeToolResult: 1,
		StepTypeError:      0,
	}, summary.StepTypeCounts)

	assert.Equal(t, map[Status]int{
		StatusPending:   0,
		StatusRunning:   0,
		StatusCompleted: 4,
		StatusFailed:    1,
	}, summary.StatusCounts)

	// Counts sum to the step total.
	typeSum, statusSum := 0, 0
	for _, n := range summary.StepTypeCounts {
		typeSum += n
	}
	for _, n := range summary.StatusCounts {
		statusSum += n
	}
	assert.Equal(t, summary.TotalSteps, typeSum)
	assert.Equal(t, summary.TotalSteps, statusSum)
}

func TestSummarize_EmptySessionIsZeroFilled(t *testing.T) {
	r := newTestRegistry()
	id := r.Create(nil)

	summary, err := r.Summarize(id)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.TotalSteps)
	assert.Len(t, summary.StepTypeCounts, 4)
	assert.Len(t, summary.StatusCounts, 4)
	for _, n := range summary.StepTypeCounts {
		assert.Zero(t, n)
	}
	for _, n := range summary.StatusCounts {
		assert.Zero(t, n)
	}
}

func TestSummarize_UnknownSession(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Summarize(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
