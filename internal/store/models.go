package store

import "time"

type Sender string

const (
	SenderUser     Sender = "user"
	SenderBot      Sender = "bot"
	SenderOperator Sender = "operator"
)

func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderOperator:
		return true
	}
	return false
}

type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type KnowledgeEntry struct {
	ID             int64     `json:"id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model"`
}
