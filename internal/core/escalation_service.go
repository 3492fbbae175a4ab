package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

const (
	// EscalationHistoryWindow is how many recent messages reach the operator.
	EscalationHistoryWindow = 10
	// MaxOperatorMessageLength is the messaging transport's hard limit, in characters.
	MaxOperatorMessageLength = 4096

	defaultMessagingTimeout = 10 * time.Second
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

type HistoryReader interface {
	LastMessagesBySession(ctx context.Context, sessionID string, n int) ([]store.Message, error)
}

// ChannelResolver picks the external chat that receives a session's
// escalation.
type ChannelResolver interface {
	ResolveChat(ctx context.Context, sessionID string) (string, error)
	RememberChat(ctx context.Context, sessionID, chatID string) error
}

type SessionChatStore interface {
	ChatIDForSession(ctx context.Context, sessionID string) (string, error)
	SetChatIDForSession(ctx context.Context, sessionID, chatID string) error
}

// SessionChannelResolver routes every session to the configured operator
// chat. When no operator chat is configured it falls back to the
// chat_sessions mapping, which is where per-session routing plugs in.
type SessionChannelResolver struct {
	sessions       SessionChatStore
	operatorChatID string
}

func NewSessionChannelResolver(sessions SessionChatStore, operatorChatID string) *SessionChannelResolver {
	return &SessionChannelResolver{sessions: sessions, operatorChatID: strings.TrimSpace(operatorChatID)}
}

func (r *SessionChannelResolver) ResolveChat(ctx context.Context, sessionID string) (string, error) {
	if r.operatorChatID != "" {
		return r.operatorChatID, nil
	}
	return r.sessions.ChatIDForSession(ctx, sessionID)
}

func (r *SessionChannelResolver) RememberChat(ctx context.Context, sessionID, chatID string) error {
	return r.sessions.SetChatIDForSession(ctx, sessionID, chatID)
}

type EscalationService struct {
	history   HistoryReader
	channels  ChannelResolver
	messenger Messenger
	timeout   time.Duration
	log       *logger.Logger
}

func NewEscalationService(history HistoryReader, channels ChannelResolver, messenger Messenger, timeout time.Duration, log *logger.Logger) *EscalationService {
	if timeout <= 0 {
		timeout = defaultMessagingTimeout
	}
	return &EscalationService{
		history:   history,
		channels:  channels,
		messenger: messenger,
		timeout:   timeout,
		log:       log.With("service", "EscalationService"),
	}
}

// NotifyOperator forwards the session's recent history and the message to
// the operator chat. It reports false instead of failing.
func (s *EscalationService) NotifyOperator(ctx context.Context, sessionID, message string, force bool) bool {
	log := s.log.With("session_id", sessionID, "force", force)

	chatID, err := s.channels.ResolveChat(ctx, sessionID)
	if err != nil {
		log.Error("Failed to resolve operator chat", "error", err)
		return false
	}
	if chatID == "" {
		log.Warn("No operator chat configured for session")
		return false
	}

	history, err := s.history.LastMessagesBySession(ctx, sessionID, EscalationHistoryWindow)
	if err != nil {
		log.Error("Failed to read history for escalation", "error", err)
		return false
	}

	text := BuildEscalationText(sessionID, history, message, force)

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messenger.SendMessage(sendCtx, chatID, text); err != nil {
		if status, ok := httpStatus(err); ok {
			log.Error("Messaging API rejected escalation", "status_code", status, "error", err)
		} else {
			log.Error("Failed to send escalation", "error", err)
		}
		return false
	}

	if err := s.channels.RememberChat(ctx, sessionID, chatID); err != nil {
		log.Warn("Failed to record session chat", "chat_id", chatID, "error", err)
	}
	log.Info("Escalation sent", "chat_id", chatID, "history_len", len(history))
	return true
}

func senderPrefix(sender store.Sender) string {
	switch sender {
	case store.SenderUser:
		return "👤"
	case store.SenderBot:
		return "🤖"
	default:
		return "👨‍💼"
	}
}

// BuildEscalationText renders the operator notification and keeps it within
// MaxOperatorMessageLength characters. History lines are dropped oldest
// first; only if the header and notice alone are too long is the notice cut.
func BuildEscalationText(sessionID string, history []store.Message, message string, force bool) string {
	header := fmt.Sprintf("📨 New request from user [%s]:\n", sessionID)

	var notice string
	if force {
		notice = "\n❗ The user requests to contact the operator:\n" + message
	} else {
		notice = "\n❗ Question: " + message
	}

	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = fmt.Sprintf("%s: %s\n", senderPrefix(m.Sender), m.Content)
	}

	total := utf8.RuneCountInString(header) + utf8.RuneCountInString(notice)
	for _, l := range lines {
		total += utf8.RuneCountInString(l)
	}
	for len(lines) > 0 && total > MaxOperatorMessageLength {
		total -= utf8.RuneCountInString(lines[0])
		lines = lines[1:]
	}

	text := header + strings.Join(lines, "") + notice
	return truncateRunes(text, MaxOperatorMessageLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
