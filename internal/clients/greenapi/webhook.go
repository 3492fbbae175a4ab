package greenapi

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

const (
	TypeIncomingMessageReceived = "incomingMessageReceived"
	TypeOutgoingMessageReceived = "outgoingMessageReceived"

	typeTextMessage         = "textMessage"
	typeExtendedTextMessage = "extendedTextMessage"
)

// Event is one webhook notification. Concrete types are *TextMessageEvent
// and *UnsupportedEvent.
type Event interface {
	WebhookType() string
}

// TextMessageEvent is a text message seen in a chat of the instance, sent
// either by the chat's other party (incoming) or from the instance phone
// (outgoing).
type TextMessageEvent struct {
	Type      string
	IDMessage string
	ChatID    string
	Sender    string
	Text      string
	Timestamp int64
}

func (e *TextMessageEvent) WebhookType() string { return e.Type }

// UnsupportedEvent covers every other notification kind, including
// non-text messages.
type UnsupportedEvent struct {
	Type   string
	Reason string
}

func (e *UnsupportedEvent) WebhookType() string { return e.Type }

type envelope struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	Timestamp   int64  `json:"timestamp"`
	SenderData  *struct {
		ChatID string `json:"chatId"`
		Sender string `json:"sender"`
	} `json:"senderData"`
	MessageData *struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData *struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
	} `json:"messageData"`
}

// ParseWebhook validates a raw notification body. Bodies that are not a
// JSON object with a typeWebhook field yield ErrMalformedPayload.
func ParseWebhook(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if strings.TrimSpace(env.TypeWebhook) == "" {
		return nil, ErrMalformedPayload
	}

	switch env.TypeWebhook {
	case TypeIncomingMessageReceived, TypeOutgoingMessageReceived:
	default:
		return &UnsupportedEvent{Type: env.TypeWebhook, Reason: "unsupported event type"}, nil
	}

	if env.MessageData == nil {
		return &UnsupportedEvent{Type: env.TypeWebhook, Reason: "no message data"}, nil
	}

	var text string
	switch md := env.MessageData; {
	case md.TextMessageData != nil:
		text = md.TextMessageData.TextMessage
	case md.ExtendedTextMessageData != nil:
		text = md.ExtendedTextMessageData.Text
	case md.TypeMessage != typeTextMessage && md.TypeMessage != typeExtendedTextMessage:
		return &UnsupportedEvent{Type: env.TypeWebhook, Reason: "non-text message"}, nil
	}

	ev := &TextMessageEvent{
		Type:      env.TypeWebhook,
		IDMessage: env.IDMessage,
		Text:      text,
		Timestamp: env.Timestamp,
	}
	if env.SenderData != nil {
		ev.ChatID = env.SenderData.ChatID
		ev.Sender = env.SenderData.Sender
	}
	return ev, nil
}
