package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state shared by sessions and steps.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses returns every status value, in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepType identifies what kind of work a step records.
type StepType string

const (
	StepTypeModelCall  StepType = "model_call"
	StepTypeToolUse    StepType = "tool_use"
	StepTypeToolResult StepType = "tool_result"
	StepTypeError      StepType = "error"
)

// StepTypes returns every step type value.
func StepTypes() []StepType {
	return []StepType{StepTypeModelCall, StepTypeToolUse, StepTypeToolResult, StepTypeError}
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeModelCall, StepTypeToolUse, StepTypeToolResult, StepTypeError:
		return true
	}
	return false
}

// StepDetails is the typed payload attached to a step. Each step type has its
// own variant; all of them marshal to a plain JSON object for the API.
type StepDetails interface {
	stepType() StepType
}

// ModelCallDetails describes one content block the model emitted.
type ModelCallDetails struct {
	ContentType string                 `json:"content_type"`
	Content     map[string]interface{} `json:"content,omitempty"`
}

func (ModelCallDetails) stepType() StepType { return StepTypeModelCall }

// ToolUseDetails summarizes one tool invocation outcome.
type ToolUseDetails struct {
	ToolID       string `json:"tool_id"`
	Output       string `json:"output,omitempty"`
	ErrorPresent bool   `json:"error_present"`
	HasImage     bool   `json:"has_image"`
}

func (ToolUseDetails) stepType() StepType { return StepTypeToolUse }

// APIResponseDetails summarizes one raw provider API exchange.
type APIResponseDetails struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
}

func (APIResponseDetails) stepType() StepType { return StepTypeToolResult }

// Step records one unit of work within a session. Once closed it is never
// mutated again.
type Step struct {
	ID        uuid.UUID   `json:"id"`
	Type      StepType    `json:"type"`
	Status    Status      `json:"status"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Details   StepDetails `json:"details,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewStep creates a running step with the current time as its start.
func NewStep(t StepType, details StepDetails) Step {
	return Step{
		ID:        uuid.New(),
		Type:      t,
		Status:    StatusRunning,
		StartTime: time.Now(),
		Details:   details,
	}
}

// UnmarshalJSON decodes the details payload into the variant matching the
// step type. Error steps carry no details.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	aux := struct {
		*alias
		Details json.RawMessage `json:"details,omitempty"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Details) == 0 || string(aux.Details) == "null" {
		return nil
	}

	switch s.Type {
	case StepTypeModelCall:
		var d ModelCallDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		s.Details = d
	case StepTypeToolUse:
		var d ToolUseDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		s.Details = d
	case StepTypeToolResult:
		var d APIResponseDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		s.Details = d
	case StepTypeError:
	default:
		return fmt.Errorf("unknown step type: %s", s.Type)
	}
	return nil
}

// Close moves the step to its terminal status. A non-empty errMsg closes it
// as failed, otherwise as completed. Closing an already terminal step is a
// no-op.
func (s *Step) Close(errMsg string) {
	if s.Status.Terminal() {
		return
	}
	now := time.Now()
	s.EndTime = &now
	if errMsg != "" {
		s.Status = StatusFailed
		s.Error = errMsg
	} else {
		s.Status = StatusCompleted
	}
}

// Validate checks the step invariants: end time is set iff the status is
// terminal, and an error message is present iff the step failed.
func (s Step) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("invalid step type: %s", s.Type)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid step status: %s", s.Status)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("step start time is not set")
	}
	if s.Status.Terminal() && s.EndTime == nil {
		return fmt.Errorf("terminal step has no end time")
	}
	if !s.Status.Terminal() && s.EndTime != nil {
		return fmt.Errorf("non-terminal step has an end time")
	}
	if s.Status == StatusFailed && s.Error == "" {
		return fmt.Errorf("failed step has no error message")
	}
	if s.Status != StatusFailed && s.Error != "" {
		return fmt.Errorf("non-failed step carries an error message")
	}
	return nil
}
