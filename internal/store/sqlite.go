package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrInvalidSender = errors.New("invalid message sender")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite has a single writer; one connection keeps appends serialized.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'bot', 'operator')),
        message TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, id);

    CREATE TABLE IF NOT EXISTS chat_sessions (
        session_id TEXT PRIMARY KEY,
        chat_id TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS knowledge_entries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        question TEXT NOT NULL,
        answer TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON array of float32
        embedding_model TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Message methods

// AppendMessage inserts msg and fills in its ID and Timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if !msg.Sender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSender, msg.Sender)
	}
	msg.Timestamp = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, sender, message, timestamp) VALUES (?, ?, ?, ?)",
		msg.SessionID, string(msg.Sender), msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	msg.ID, _ = res.LastInsertId()
	return nil
}

// MessagesBySession returns every message of the session in insertion order.
func (s *SQLiteStore) MessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, sender, message, timestamp FROM messages WHERE session_id = ? ORDER BY id ASC",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// LastMessagesBySession returns up to n most recent messages, oldest first.
func (s *SQLiteStore) LastMessagesBySession(ctx context.Context, sessionID string, n int) ([]Message, error) {
	query := `
        SELECT id, session_id, sender, message, timestamp
        FROM messages
        WHERE session_id = ?
        ORDER BY id DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var sender string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Sender = Sender(sender)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// Chat session methods

// ChatIDForSession returns "" when the session has no mapping.
func (s *SQLiteStore) ChatIDForSession(ctx context.Context, sessionID string) (string, error) {
	var chatID string
	err := s.db.QueryRowContext(ctx, "SELECT chat_id FROM chat_sessions WHERE session_id = ?", sessionID).Scan(&chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query chat session: %w", err)
	}
	return chatID, nil
}

func (s *SQLiteStore) SetChatIDForSession(ctx context.Context, sessionID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, chat_id) VALUES (?, ?)
         ON CONFLICT(session_id) DO UPDATE SET chat_id = excluded.chat_id`,
		sessionID, chatID)
	if err != nil {
		return fmt.Errorf("failed to upsert chat session: %w", err)
	}
	return nil
}

// KnowledgeEntry methods (for the SQLite similarity index)

// ReplaceKnowledge swaps the whole corpus in a single transaction.
func (s *SQLiteStore) ReplaceKnowledge(ctx context.Context, entries []KnowledgeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin knowledge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_entries"); err != nil {
		return fmt.Errorf("failed to delete knowledge entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO knowledge_entries (question, answer, embedding_json, embedding_model) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare knowledge insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		embeddingBytes, err := json.Marshal(entries[i].Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		res, err := stmt.ExecContext(ctx, entries[i].Question, entries[i].Answer, string(embeddingBytes), entries[i].EmbeddingModel)
		if err != nil {
			return fmt.Errorf("failed to execute knowledge insert: %w", err)
		}
		entries[i].ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit knowledge transaction: %w", err)
	}
	return nil
}

// AllKnowledge returns the corpus ordered by id. Rows whose embedding cannot
// be decoded come back with a nil Embedding.
func (s *SQLiteStore) AllKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, question, answer, embedding_json, embedding_model FROM knowledge_entries ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		var entry KnowledgeEntry
		var embeddingJSON string
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer, &embeddingJSON, &entry.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &entry.Embedding); err != nil {
			entry.Embedding = nil
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge rows: %w", err)
	}
	return entries, nil
}
