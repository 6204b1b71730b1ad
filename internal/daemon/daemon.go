// Package daemon wires the service together: configuration, logging,
// tracing, the session registry, the orchestrator and the HTTP server, with
// a signal-driven lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davin/traceo/internal/config"
	"github.com/davin/traceo/internal/logger"
	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/internal/tracing"
	"github.com/davin/traceo/pkg/api"
	"github.com/davin/traceo/pkg/conversation"
	"github.com/davin/traceo/pkg/loop"
	"github.com/davin/traceo/pkg/session"
)

// Daemon represents the traceo daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	registry     *session.Registry
	broadcaster  *api.Broadcaster
	orchestrator *conversation.Orchestrator
	server       *api.Server

	wg        sync.WaitGroup
	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()
	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("traceo-daemon"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		tracingEnabled: tracingEnabled,
	}

	if err := d.initialize(); err != nil {
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}

	return d, nil
}

// initialize builds the modules in dependency order.
func (d *Daemon) initialize() error {
	zl := d.logger.GetZerolog()

	d.registry = session.NewRegistry(zl)
	d.broadcaster = api.NewBroadcaster(zl)

	sampler, err := buildSampler(d.config)
	if err != nil {
		return err
	}

	overrides := make(map[loop.Provider]string, len(d.config.Providers.DefaultModels))
	for name, model := range d.config.Providers.DefaultModels {
		overrides[loop.Provider(name)] = model
	}

	d.orchestrator, err = conversation.New(conversation.Config{
		Registry:              d.registry,
		Sampler:               sampler,
		Observer:              d.broadcaster,
		Logger:                zl,
		ModelOverrides:        overrides,
		DefaultMaxTokens:      d.config.Loop.MaxTokens,
		DefaultImageRetention: d.config.Loop.OnlyNMostRecentImages,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	d.server, err = api.NewServer(api.ServerOptions{
		Host:               d.config.Server.Host,
		Port:               d.config.Server.Port,
		RateLimitPerMinute: d.config.Server.RateLimitPerMinute,
	}, d.orchestrator, d.registry, d.broadcaster, zl)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return nil
}

func buildSampler(cfg *config.Config) (loop.Sampler, error) {
	switch cfg.Loop.Sampler {
	case "dev":
		return &loop.DevSampler{}, nil
	default:
		return nil, fmt.Errorf("unknown sampler: %s", cfg.Loop.Sampler)
	}
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().
		Str("host", d.config.Server.Host).
		Int("port", d.config.Server.Port).
		Str("sampler", d.config.Loop.Sampler).
		Msg("Starting traceo daemon")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Start(); err != nil {
			d.logger.Error().Err(err).Msg("HTTP server exited with error")
		}
	}()

	d.logger.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping traceo daemon")

	if err := d.server.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop HTTP server")
	}
	d.wg.Wait()

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to shut down tracing")
		}
		d.tracingEnabled = false
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Running reports whether the daemon has been started and not yet stopped.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Uptime returns how long the daemon has been running, zero when stopped.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.startTime)
}
