package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"moblaw.ru/legal-assistant/internal/logger"
)

func TestFallbackGenerator(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		want      string
	}{
		{
			name:      "answer is trimmed",
			completer: &fakeCompleter{answer: "  You may file a claim within three years.\n"},
			want:      "You may file a claim within three years.",
		},
		{
			name:      "http error",
			completer: &fakeCompleter{err: &APIError{StatusCode: 429, Err: errBoom}},
			want:      FallbackErrorReply,
		},
		{
			name:      "transport error",
			completer: &fakeCompleter{err: context.DeadlineExceeded},
			want:      FallbackErrorReply,
		},
		{
			name:      "empty answer",
			completer: &fakeCompleter{answer: " \n"},
			want:      FallbackErrorReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewFallbackGenerator(tt.completer, 0, logger.NewNop())
			assert.Equal(t, tt.want, g.Generate(context.Background(), "How long is the limitation period?"))
			assert.Equal(t, LegalAssistantInstruction, tt.completer.system)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	code, ok := httpStatus(&statusErr{code: 503})
	assert.True(t, ok)
	assert.Equal(t, 503, code)

	_, ok = httpStatus(errBoom)
	assert.False(t, ok)
}
