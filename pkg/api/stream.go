package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/pkg/session"
)

const subscriberBuffer = 32

// Broadcaster fans out recorded steps to websocket subscribers. It implements
// session.StepObserver so the orchestrator can feed it directly.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[string]chan StepEvent
	logger      zerolog.Logger
}

var _ session.StepObserver = (*Broadcaster)(nil)

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]map[string]chan StepEvent),
		logger:      logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Subscribe registers a listener for one session's steps. The returned id is
// passed to Unsubscribe when the listener goes away.
func (b *Broadcaster) Subscribe(sessionID uuid.UUID) (string, <-chan StepEvent) {
	id := gonanoid.Must()
	ch := make(chan StepEvent, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = make(map[string]chan StepEvent)
	}
	b.subscribers[sessionID][id] = ch
	observability.AddStreamClients(1)

	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionID uuid.UUID, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sessionID]
	ch, ok := subs[id]
	if !ok {
		return
	}

	delete(subs, id)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}
	close(ch)
	observability.AddStreamClients(-1)
}

// StepRecorded delivers a step to every subscriber of its session. Slow
// subscribers with a full buffer are skipped rather than blocking the
// sampling loop.
func (b *Broadcaster) StepRecorded(sessionID uuid.UUID, step session.Step) {
	event := StepEvent{
		SessionID: sessionID,
		Step:      step,
		Timestamp: time.Now().UnixMilli(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn().
				Str("session_id", sessionID.String()).
				Str("subscriber_id", id).
				Msg("subscriber buffer full, dropping step event")
		}
	}
}

// Close drops every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
			observability.AddStreamClients(-1)
		}
		delete(b.subscribers, sessionID)
	}
}
