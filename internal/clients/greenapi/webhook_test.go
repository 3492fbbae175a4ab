package greenapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantText   *TextMessageEvent
		wantReason string
	}{
		{
			name:    "invalid json",
			body:    `{"typeWebhook":`,
			wantErr: true,
		},
		{
			name:    "missing type",
			body:    `{"idMessage":"1"}`,
			wantErr: true,
		},
		{
			name:       "state change is unsupported",
			body:       `{"typeWebhook":"stateInstanceChanged","stateInstance":"authorized"}`,
			wantReason: "unsupported event type",
		},
		{
			name:       "api sent message is unsupported",
			body:       `{"typeWebhook":"outgoingAPIMessageReceived","messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"x"}}}`,
			wantReason: "unsupported event type",
		},
		{
			name:       "image message",
			body:       `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"c@g.us"},"messageData":{"typeMessage":"imageMessage"}}`,
			wantReason: "non-text message",
		},
		{
			name:       "no message data",
			body:       `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"c@g.us"}}`,
			wantReason: "no message data",
		},
		{
			name: "incoming text",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"ABC","timestamp":1700000000,
				"senderData":{"chatId":"120363@g.us","sender":"7999@c.us"},
				"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"[s1]: hello"}}}`,
			wantText: &TextMessageEvent{
				Type: TypeIncomingMessageReceived, IDMessage: "ABC", ChatID: "120363@g.us",
				Sender: "7999@c.us", Text: "[s1]: hello", Timestamp: 1700000000,
			},
		},
		{
			name: "outgoing extended text",
			body: `{"typeWebhook":"outgoingMessageReceived","idMessage":"DEF",
				"senderData":{"chatId":"120363@g.us"},
				"messageData":{"typeMessage":"extendedTextMessage","extendedTextMessageData":{"text":"s2 reply"}}}`,
			wantText: &TextMessageEvent{
				Type: TypeOutgoingMessageReceived, IDMessage: "DEF", ChatID: "120363@g.us", Text: "s2 reply",
			},
		},
		{
			name: "text type without payload",
			body: `{"typeWebhook":"incomingMessageReceived","senderData":{"chatId":"c@g.us"},"messageData":{"typeMessage":"textMessage"}}`,
			wantText: &TextMessageEvent{
				Type: TypeIncomingMessageReceived, ChatID: "c@g.us",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhook([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			require.NoError(t, err)

			if tt.wantText != nil {
				got, ok := ev.(*TextMessageEvent)
				require.True(t, ok, "expected text event, got %T", ev)
				assert.Equal(t, tt.wantText, got)
				return
			}
			got, ok := ev.(*UnsupportedEvent)
			require.True(t, ok, "expected unsupported event, got %T", ev)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}
