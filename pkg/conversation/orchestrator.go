// Package conversation drives one sampling loop invocation end to end:
// session allocation, model resolution, callback wiring, and final status
// bookkeeping.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/internal/tracing"
	"github.com/davin/traceo/pkg/loop"
	"github.com/davin/traceo/pkg/session"
)

// Orchestrator runs conversations against an external sampling loop and
// records their traces in the session registry.
type Orchestrator struct {
	registry *session.Registry
	sampler  loop.Sampler
	observer session.StepObserver
	logger   zerolog.Logger

	modelOverrides        map[loop.Provider]string
	defaultMaxTokens      int
	defaultImageRetention int
}

// Config holds orchestrator configuration
type Config struct {
	Registry *session.Registry
	Sampler  loop.Sampler

	// Observer receives terminal step events. Optional.
	Observer session.StepObserver

	Logger zerolog.Logger

	// ModelOverrides replaces entries of the built-in provider default model
	// table. Optional.
	ModelOverrides map[loop.Provider]string

	// DefaultMaxTokens applies when a request leaves MaxTokens unset.
	DefaultMaxTokens int

	// DefaultImageRetention applies when a request leaves
	// OnlyNMostRecentImages unset. Zero keeps every image.
	DefaultImageRetention int
}

// New creates a new orchestrator
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.Sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4096
	}

	return &Orchestrator{
		registry:              cfg.Registry,
		sampler:               cfg.Sampler,
		observer:              cfg.Observer,
		logger:                cfg.Logger,
		modelOverrides:        cfg.ModelOverrides,
		defaultMaxTokens:      cfg.DefaultMaxTokens,
		defaultImageRetention: cfg.DefaultImageRetention,
	}, nil
}

// Request carries the caller's parameters for one conversation run.
type Request struct {
	Messages           []loop.Message
	SystemPromptSuffix string
	Provider           loop.Provider
	Model              string
	APIKey             string

	OnlyNMostRecentImages int
	MaxTokens             int
}

// Result is the successful outcome of a run.
type Result struct {
	SessionID uuid.UUID
	Status    session.Status
	Messages  []loop.Message
}

// Run executes one conversation. The session is created before anything can
// fail, so even an unresolvable provider leaves a queryable failed session
// behind. The returned error wraps the loop's failure message verbatim.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if req.Provider == "" {
		req.Provider = loop.ProviderAnthropic
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = o.defaultMaxTokens
	}
	if req.OnlyNMostRecentImages <= 0 {
		req.OnlyNMostRecentImages = o.defaultImageRetention
	}

	sessionID := o.registry.Create(req.Messages)

	ctx = tracing.WithSessionID(ctx, sessionID.String())
	ctx, span := tracing.StartSpan(
		ctx,
		"traceo.conversation",
		"conversation.run",
		attribute.String("session_id", sessionID.String()),
		attribute.String("provider", string(req.Provider)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, o.logger).With().
		Str("session_id", sessionID.String()).
		Logger()

	observability.RecordSessionStarted(string(req.Provider))

	recorder := session.NewRecorder(o.registry, sessionID, logger, o.observer)

	model := req.Model
	if model == "" {
		resolved, err := loop.DefaultModel(req.Provider, o.modelOverrides)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.fail(sessionID, recorder, logger, err)
			return Result{}, fmt.Errorf("resolve model: %w", err)
		}
		model = resolved
	}
	span.SetAttributes(attribute.String("model", model))

	if err := o.registry.Mutate(sessionID, func(s *session.Session) {
		s.Status = session.StatusRunning
		session.Touch(s)
	}); err != nil {
		// Sessions are never evicted, so this only fires if the registry was
		// swapped out from under us.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("mark session running: %w", err)
	}

	logger.Info().
		Str("provider", string(req.Provider)).
		Str("model", model).
		Int("messages", len(req.Messages)).
		Msg("Starting sampling loop")

	start := time.Now()
	messages, err := o.sampler.Sample(ctx, loop.Request{
		Model:                 model,
		Provider:              req.Provider,
		SystemPromptSuffix:    req.SystemPromptSuffix,
		Messages:              req.Messages,
		APIKey:                req.APIKey,
		OnlyNMostRecentImages: req.OnlyNMostRecentImages,
		MaxTokens:             req.MaxTokens,
	}, recorder)
	observability.RecordLoopRun(string(req.Provider), time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Sampling loop failed")
		o.fail(sessionID, recorder, logger, err)
		return Result{}, fmt.Errorf("sampling loop: %w", err)
	}

	if err := o.registry.Mutate(sessionID, func(s *session.Session) {
		s.Messages = messages
		s.Status = session.StatusCompleted
		session.Touch(s)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("finalize session: %w", err)
	}

	logger.Info().
		Int("messages", len(messages)).
		Dur("duration", time.Since(start)).
		Msg("Sampling loop completed")

	return Result{
		SessionID: sessionID,
		Status:    session.StatusCompleted,
		Messages:  messages,
	}, nil
}

// fail marks the session failed and appends the synthetic error step. The
// message list stays at whatever it was before the failing call.
func (o *Orchestrator) fail(sessionID uuid.UUID, recorder *session.Recorder, logger zerolog.Logger, cause error) {
	if err := o.registry.Mutate(sessionID, func(s *session.Session) {
		s.Status = session.StatusFailed
		session.Touch(s)
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark session failed")
		return
	}
	recorder.RecordFailure(cause.Error())
}
