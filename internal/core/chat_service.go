package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

const (
	OperatorRequestedPlaceholder = "[User requested operator]"

	EscalationSentReply   = "Chat history sent to a specialist."
	EscalationFailedReply = "⚠️ We could not reach a specialist right now. Please try again later."
	IndexUnavailableReply = "⚠️ The knowledge base is temporarily unavailable. Please try again later."
)

type ConversationStore interface {
	AppendMessage(ctx context.Context, msg *store.Message) error
	MessagesBySession(ctx context.Context, sessionID string) ([]store.Message, error)
}

type Resolver interface {
	Resolve(ctx context.Context, question string, topK int, similarityThreshold float32) (Outcome, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, question string) string
}

type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, sessionID, message string, force bool) bool
}

type ChatRequest struct {
	SessionID        string
	Question         string
	SwitchToOperator bool
}

// ChatService sequences retrieval, fallback and escalation for one chat
// request and logs both sides of the exchange.
type ChatService struct {
	store      ConversationStore
	resolver   Resolver
	fallback   AnswerGenerator
	escalation OperatorNotifier
	log        *logger.Logger
}

func NewChatService(st ConversationStore, resolver Resolver, fallback AnswerGenerator, escalation OperatorNotifier, log *logger.Logger) *ChatService {
	return &ChatService{
		store:      st,
		resolver:   resolver,
		fallback:   fallback,
		escalation: escalation,
		log:        log.With("service", "ChatService"),
	}
}

// HandleChat answers one chat message. The user message is stored before
// any work and the reply is stored before it is returned. The request is
// not cancelled when the caller goes away; the remote calls it makes are
// bounded by their own timeouts.
func (s *ChatService) HandleChat(ctx context.Context, req ChatRequest) (string, error) {
	ctx = context.WithoutCancel(ctx)

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return "", ErrEmptySession
	}
	question := strings.TrimSpace(req.Question)
	log := s.log.With("session_id", sessionID)
	log.Info("Chat request", "switch_to_operator", req.SwitchToOperator)

	userMsg := store.Message{SessionID: sessionID, Sender: store.SenderUser, Content: question}
	if err := s.store.AppendMessage(ctx, &userMsg); err != nil {
		log.Error("Failed to store user message", "stage", "record_user", "error", err)
		return "", fmt.Errorf("failed to store user message: %w", err)
	}

	var answer string
	if req.SwitchToOperator {
		answer = s.escalate(ctx, sessionID, question)
	} else {
		answer = s.answer(ctx, log, question)
	}

	botMsg := store.Message{SessionID: sessionID, Sender: store.SenderBot, Content: answer}
	if err := s.store.AppendMessage(ctx, &botMsg); err != nil {
		log.Error("Failed to store bot message", "stage", "record_bot", "error", err)
		return "", fmt.Errorf("failed to store bot message: %w", err)
	}
	return answer, nil
}

func (s *ChatService) escalate(ctx context.Context, sessionID, question string) string {
	message := question
	if message == "" {
		message = OperatorRequestedPlaceholder
	}
	if s.escalation.NotifyOperator(ctx, sessionID, message, true) {
		return EscalationSentReply
	}
	return EscalationFailedReply
}

func (s *ChatService) answer(ctx context.Context, log *logger.Logger, question string) string {
	outcome, err := s.resolver.Resolve(ctx, question, DefaultTopK, DefaultSimilarityThreshold)
	if err != nil {
		log.Error("Retrieval failed", "stage", "retrieval", "index_unavailable", errors.Is(err, ErrIndexUnavailable), "error", err)
		return IndexUnavailableReply
	}

	if outcome.Found() {
		log.Info("Answered from knowledge base", "outcome", outcome.Kind.String(), "distance", outcome.Distance)
		return outcome.Reply()
	}

	log.Info("No knowledge base match, using fallback", "stage", "fallback")
	return s.fallback.Generate(ctx, question)
}

// History returns the session's messages in the order they were stored.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]store.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	messages, err := s.store.MessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// InitSession acknowledges a widget session. Sessions are created
// implicitly by their first message, so nothing is stored.
func (s *ChatService) InitSession(ctx context.Context, sessionID string) {
	s.log.Info("Session initialized", "session_id", strings.TrimSpace(sessionID))
}
