package core

import (
	"context"
	"errors"
	"sync"

	"moblaw.ru/legal-assistant/internal/store"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
	mu    sync.Mutex
	byKey map[string]error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.byKey[text]; ok {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vec...), nil
}

type fakeIndex struct {
	candidates []Candidate
	err        error
	gotK       int
}

func (f *fakeIndex) Nearest(_ context.Context, _ []float32, k int) ([]Candidate, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > k {
		return f.candidates[:k], nil
	}
	return f.candidates, nil
}

// memStore is an in-memory conversation and session store.
type memStore struct {
	mu        sync.Mutex
	messages  []store.Message
	chats     map[string]string
	appendErr error
	// failOn makes AppendMessage fail for messages from this sender.
	failOn store.Sender
}

func newMemStore() *memStore {
	return &memStore{chats: map[string]string{}}
}

func (m *memStore) AppendMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil && (m.failOn == "" || m.failOn == msg.Sender) {
		return m.appendErr
	}
	if !msg.Sender.Valid() {
		return store.ErrInvalidSender
	}
	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) MessagesBySession(_ context.Context, sessionID string) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) LastMessagesBySession(ctx context.Context, sessionID string, n int) ([]store.Message, error) {
	all, _ := m.MessagesBySession(ctx, sessionID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (m *memStore) ChatIDForSession(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[sessionID], nil
}

func (m *memStore) SetChatIDForSession(_ context.Context, sessionID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[sessionID] = chatID
	return nil
}

type sentMessage struct {
	chatID string
	text   string
}

type fakeMessenger struct {
	sent []sentMessage
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type fakeCompleter struct {
	answer string
	err    error
	system string
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, system, _ string) (string, error) {
	f.calls++
	f.system = system
	return f.answer, f.err
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return "remote returned an error" }
func (e *statusErr) HTTPStatusCode() int { return e.code }

var errBoom = errors.New("boom")
