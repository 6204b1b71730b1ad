package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/davin/traceo/internal/tracing"
	"github.com/davin/traceo/pkg/conversation"
	"github.com/davin/traceo/pkg/loop"
	"github.com/davin/traceo/pkg/session"
)

const maxRequestBody = 10 << 20 // 10 MB

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleCreateConversation runs the sampling loop synchronously and returns
// the final message list.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	logger := tracing.LoggerFromContext(r.Context(), s.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := s.validator.validate(body); err != nil {
		logger.Debug().Err(err).Msg("Request rejected by schema")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ConversationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.orchestrator.Run(r.Context(), conversation.Request{
		Messages:              req.Messages,
		SystemPromptSuffix:    req.SystemPromptSuffix,
		Provider:              loop.Provider(req.Provider),
		Model:                 req.Model,
		APIKey:                req.APIKey,
		OnlyNMostRecentImages: req.OnlyNMostRecentImages,
		MaxTokens:             req.MaxTokens,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Conversation run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{
		SessionID: result.SessionID,
		Status:    result.Status,
		Messages:  result.Messages,
	})
}

// handleGetConversation returns the full session trace.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	snapshot, err := s.registry.Get(id)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleGetSteps returns the step log, optionally filtered by type and
// status query parameters.
func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var filter session.StepFilter

	if raw := r.URL.Query().Get("type"); raw != "" {
		stepType := session.StepType(raw)
		if !stepType.Valid() {
			writeError(w, http.StatusBadRequest, "unknown step type: "+raw)
			return
		}
		filter.Type = &stepType
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := session.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown step status: "+raw)
			return
		}
		filter.Status = &status
	}

	steps, err := s.registry.Steps(id, filter)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"steps":      steps,
	})
}

// handleGetSummary returns aggregate step counts for one session.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	summary, err := s.registry.Summarize(id)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleListConversations returns lightweight descriptors for every session.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: s.registry.List()})
}

// handleStreamEvents upgrades to a websocket and forwards step events for one
// session until the client disconnects.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	logger := tracing.LoggerFromContext(r.Context(), s.logger)

	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	if _, err := s.registry.Get(id); err != nil {
		s.writeLookupError(w, r, err)
		return
	}

	if s.broadcaster == nil {
		writeError(w, http.StatusNotImplemented, "event streaming is disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, events := s.broadcaster.Subscribe(id)
	defer s.broadcaster.Unsubscribe(id, subID)

	logger.Debug().
		Str("session_id", id.String()).
		Str("subscriber_id", subID).
		Msg("Event stream opened")

	// Reader goroutine: its only job is to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleHealth reports liveness and the current session count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Seconds(),
		Sessions:  s.registry.Len(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// sessionID parses the path's {id} segment, writing a 400 on malformed input.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	logger.Error().Err(err).Msg("Session lookup failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
