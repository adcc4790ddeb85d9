package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/msgbridge/internal/relay"
	"github.com/nerrad567/msgbridge/internal/service"
)

// sendMessageRequest is the body for POST /api/v1/messages.
type sendMessageRequest struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

// subscribeRequest is the body for POST /api/v1/subscriptions.
type subscribeRequest struct {
	Topic string `json:"topic"`
}

// handleStatus returns the bridge diagnostic view.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleGetMessages returns stored messages for a topic, newest first.
// Query parameters: topic (required), limit (optional, default 50).
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic query parameter is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages := s.service.QueryTopic(topic, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"topic":    topic,
		"messages": messages,
		"count":    len(messages),
	})
}

// handleSendMessage publishes a message to the broker and records it.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg, err := s.service.SendToTopic(req.Topic, req.Content, req.Sender)
	if err != nil {
		if errors.Is(err, service.ErrEmptyTopic) {
			writeBadRequest(w, "topic is required")
			return
		}
		s.logger.Error("message publish failed", "topic", req.Topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBrokerDown, "failed to publish message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// handleClearMessages deletes stored messages. With a topic query parameter
// only that topic is cleared; without one the whole store is emptied.
func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	var cleared int
	if topic == "" {
		cleared = s.service.ClearAllMessages()
	} else {
		cleared = s.service.ClearTopicMessages(topic)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topic":   topic,
		"cleared": cleared,
	})
}

// handleListTopics returns per-topic aggregates across the whole store.
func (s *Server) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	topics := s.service.QueryAllTopics()
	writeJSON(w, http.StatusOK, map[string]any{
		"topics": topics,
		"count":  len(topics),
	})
}

// handleListSubscriptions returns the active broker subscriptions.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	topics := s.service.QuerySubscribedTopics()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": topics,
		"count":         len(topics),
	})
}

// handleSubscribe adds a broker subscription.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.service.SubscribeToTopic(req.Topic); err != nil {
		if errors.Is(err, relay.ErrEmptyTopic) {
			writeBadRequest(w, "topic is required")
			return
		}
		s.logger.Error("subscribe failed", "topic", req.Topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBrokerDown, "failed to subscribe")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"topic": req.Topic})
}

// handleUnsubscribe removes a broker subscription.
// The topic comes from the topic query parameter.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic query parameter is required")
		return
	}

	if err := s.service.UnsubscribeFromTopic(topic); err != nil {
		s.logger.Error("unsubscribe failed", "topic", topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBrokerDown, "failed to unsubscribe")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"topic": topic})
}
