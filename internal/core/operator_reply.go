package core

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"moblaw.ru/legal-assistant/internal/clients/greenapi"
	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

// UnknownSessionID receives operator messages that carry no session token.
const UnknownSessionID = "unknown"

// ParseOperatorReply splits an operator message into the session it answers
// and the reply body. Grammar:
//
//	reply   = [ "[" ] token [ "]" ] [ ":" ] { space } body
//	token   = word-char { word-char }    (letter, number or "_")
//
// The body is the rest of the text, newlines included. Text that does not
// start with a token goes to UnknownSessionID unchanged.
func ParseOperatorReply(text string) (sessionID, body string) {
	rest := text
	rest = strings.TrimPrefix(rest, "[")

	end := 0
	for end < len(rest) {
		r, size := utf8.DecodeRuneInString(rest[end:])
		if !isWordRune(r) {
			break
		}
		end += size
	}
	if end == 0 {
		return UnknownSessionID, text
	}

	sessionID, rest = rest[:end], rest[end:]
	rest = strings.TrimPrefix(rest, "]")
	rest = strings.TrimPrefix(rest, ":")
	body = strings.TrimLeftFunc(rest, unicode.IsSpace)
	return sessionID, body
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

type ReplyStatus string

const (
	ReplyReceived ReplyStatus = "received"
	ReplyIgnored  ReplyStatus = "ignored"
)

type MessageAppender interface {
	AppendMessage(ctx context.Context, msg *store.Message) error
}

// Deduper filters repeated webhook deliveries. MarkSeen reports whether
// the id is new.
type Deduper interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// OperatorReplyService records operator answers arriving from the
// messaging webhook.
type OperatorReplyService struct {
	store          MessageAppender
	dedup          Deduper
	operatorChatID string
	log            *logger.Logger
}

// NewOperatorReplyService builds the service; dedup may be nil.
func NewOperatorReplyService(st MessageAppender, dedup Deduper, operatorChatID string, log *logger.Logger) *OperatorReplyService {
	return &OperatorReplyService{
		store:          st,
		dedup:          dedup,
		operatorChatID: strings.TrimSpace(operatorChatID),
		log:            log.With("service", "OperatorReplyService"),
	}
}

// HandleEvent records a text event from the operator chat as an operator
// message. Anything else is ignored. An error is returned only when the
// message could not be stored.
func (s *OperatorReplyService) HandleEvent(ctx context.Context, event greenapi.Event) (ReplyStatus, error) {
	ev, ok := event.(*greenapi.TextMessageEvent)
	if !ok {
		s.log.Debug("Skipping webhook event", "type", event.WebhookType())
		return ReplyIgnored, nil
	}
	if s.operatorChatID == "" || ev.ChatID != s.operatorChatID {
		s.log.Debug("Ignoring message from foreign chat", "chat_id", ev.ChatID)
		return ReplyIgnored, nil
	}
	if strings.TrimSpace(ev.Text) == "" {
		return ReplyIgnored, nil
	}

	if s.dedup != nil && ev.IDMessage != "" {
		first, err := s.dedup.MarkSeen(ctx, ev.IDMessage)
		if err != nil {
			s.log.Warn("Dedup check failed, processing anyway", "id_message", ev.IDMessage, "error", err)
		} else if !first {
			s.log.Info("Duplicate webhook delivery", "id_message", ev.IDMessage)
			return ReplyIgnored, nil
		}
	}

	sessionID, body := ParseOperatorReply(ev.Text)
	msg := store.Message{SessionID: sessionID, Sender: store.SenderOperator, Content: body}
	if err := s.store.AppendMessage(ctx, &msg); err != nil {
		s.log.Error("Failed to store operator message", "session_id", sessionID, "stage", "operator_reply", "error", err)
		if s.dedup != nil && ev.IDMessage != "" {
			if ferr := s.dedup.Forget(ctx, ev.IDMessage); ferr != nil {
				s.log.Warn("Failed to release dedup key", "id_message", ev.IDMessage, "error", ferr)
			}
		}
		return ReplyIgnored, err
	}

	s.log.Info("Operator reply recorded", "session_id", sessionID, "webhook_type", ev.Type)
	return ReplyReceived, nil
}
