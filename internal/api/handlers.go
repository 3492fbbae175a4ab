package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"moblaw.ru/legal-assistant/internal/clients/greenapi"
	"moblaw.ru/legal-assistant/internal/core"
	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

const (
	clientSourceHeader = "X-Client-Source"
	maxWebhookBody     = 1 << 20
)

type ChatService interface {
	HandleChat(ctx context.Context, req core.ChatRequest) (string, error)
	History(ctx context.Context, sessionID string) ([]store.Message, error)
	InitSession(ctx context.Context, sessionID string)
}

type OperatorReplyHandler interface {
	HandleEvent(ctx context.Context, event greenapi.Event) (core.ReplyStatus, error)
}

type APIHandler struct {
	chat          ChatService
	webhook       OperatorReplyHandler
	allowedSource map[string]struct{}
	log           *logger.Logger
}

// NewAPIHandler builds the handler set. allowedSources lists the
// X-Client-Source values that may read conversation history.
func NewAPIHandler(chat ChatService, webhook OperatorReplyHandler, allowedSources []string, log *logger.Logger) *APIHandler {
	allowed := make(map[string]struct{}, len(allowedSources))
	for _, s := range allowedSources {
		if s = normalizeSource(s); s != "" {
			allowed[s] = struct{}{}
		}
	}
	return &APIHandler{
		chat:          chat,
		webhook:       webhook,
		allowedSource: allowed,
		log:           log.With("component", "api"),
	}
}

func normalizeSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type ChatRequest struct {
	SessionID        string `json:"session_id"`
	Question         string `json:"question"`
	SwitchToOperator bool   `json:"switch_to_operator"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

// ChatHandler answers a widget message. A contract_id query parameter
// takes precedence over the body's session_id.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if contractID := strings.TrimSpace(r.URL.Query().Get("contract_id")); contractID != "" {
		req.SessionID = contractID
	}

	answer, err := h.chat.HandleChat(r.Context(), core.ChatRequest{
		SessionID:        req.SessionID,
		Question:         req.Question,
		SwitchToOperator: req.SwitchToOperator,
	})
	if err != nil {
		if errors.Is(err, core.ErrEmptySession) {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		h.log.Error("Chat request failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer})
}

type historyMessage struct {
	Sender    store.Sender `json:"sender"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

type HistoryResponse struct {
	Messages []historyMessage `json:"messages"`
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	source := normalizeSource(r.Header.Get(clientSourceHeader))
	if _, ok := h.allowedSource[source]; !ok {
		h.log.Warn("History access denied", "client_source", source)
		writeError(w, http.StatusForbidden, "AccessDenied")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, core.ErrEmptySession) {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		h.log.Error("Failed to load history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := HistoryResponse{Messages: make([]historyMessage, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, historyMessage{Sender: m.Sender, Message: m.Content, Timestamp: m.Timestamp})
	}
	writeJSON(w, http.StatusOK, resp)
}

type WebhookResponse struct {
	Status string `json:"status"`
}

const statusInvalidJSON = "invalid json"

// WebhookHandler acknowledges every Green API notification with 200 so the
// provider does not redeliver. Only a failed write of an operator reply
// returns 500, which lets a redelivery try again.
func (h *APIHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusOK, WebhookResponse{Status: statusInvalidJSON})
		return
	}

	event, err := greenapi.ParseWebhook(raw)
	if err != nil {
		h.log.Warn("Malformed webhook payload", "error", err)
		writeJSON(w, http.StatusOK, WebhookResponse{Status: statusInvalidJSON})
		return
	}

	status, err := h.webhook.HandleEvent(r.Context(), event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Status: string(status)})
}

type InitSessionRequest struct {
	ContractID string `json:"contract_id"`
}

func (h *APIHandler) InitSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req InitSessionRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	h.chat.InitSession(r.Context(), req.ContractID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
