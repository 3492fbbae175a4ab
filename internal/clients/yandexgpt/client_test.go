package yandexgpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moblaw.ru/legal-assistant/internal/logger"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(logger.NewNop(), Config{FolderID: "b1g", Authorization: "Api-Key k", BaseURL: url})
	require.NoError(t, err)
	return c
}

func TestComplete(t *testing.T) {
	var got completionRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/completion", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":{"alternatives":[{"message":{"role":"assistant","text":"An LLC is..."},"status":"ALTERNATIVE_STATUS_FINAL"}]}}`))
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Complete(context.Background(), "system prompt", "What is an LLC?")
	require.NoError(t, err)

	assert.Equal(t, "An LLC is...", answer)
	assert.Equal(t, "Api-Key k", gotAuth)
	assert.Equal(t, "gpt://b1g/yandexgpt/latest", got.ModelURI)
	assert.InDelta(t, 0.4, got.CompletionOptions.Temperature, 1e-9)
	assert.Equal(t, 1000, got.CompletionOptions.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, message{Role: "system", Text: "system prompt"}, got.Messages[0])
	assert.Equal(t, message{Role: "user", Text: "What is an LLC?"}, got.Messages[1])
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "q")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.HTTPStatusCode())
}

func TestCompleteNoAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"alternatives":[]}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "q")
	assert.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(logger.NewNop(), Config{FolderID: "b1g"})
	assert.Error(t, err)
}
