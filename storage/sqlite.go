// Package storage provides SQLite thread storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Message rows are rewritten only when the message content hash changes
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/chatkit/model"
)

// SqliteStorage implements ThreadStorage using SQLite.
// Stores threads and their messages in a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			state TEXT NOT NULL,
			ai_model TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			content_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_updated
		ON threads(updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			thread_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			text TEXT NOT NULL,
			original_text TEXT,
			editable INTEGER NOT NULL DEFAULT 0,
			done INTEGER NOT NULL DEFAULT 0,
			attachments TEXT,
			PRIMARY KEY (thread_id, message_index),
			FOREIGN KEY (thread_id) REFERENCES threads(thread_id) ON DELETE CASCADE
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// messagesHash fingerprints the message list so unchanged lists are not rewritten.
func messagesHash(messages []model.Message) (string, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// Save stores the thread in one transaction.
func (s *SqliteStorage) Save(ctx context.Context, thread *model.Thread) error {
	hash, err := messagesHash(thread.Messages)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash FROM threads WHERE thread_id = ?", thread.ThreadID).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read thread: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (thread_id, title, state, ai_model, active, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			ai_model = excluded.ai_model,
			active = excluded.active,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		thread.ThreadID,
		thread.Title,
		string(thread.State),
		thread.AIModel,
		thread.Active,
		hash,
		thread.CreatedAt.UnixNano(),
		thread.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	if previous != hash {
		if err := s.replaceMessages(ctx, tx, thread); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SqliteStorage) replaceMessages(ctx context.Context, tx *sql.Tx, thread *model.Thread) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", thread.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (thread_id, message_index, id, type, text, original_text, editable, done, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range thread.Messages {
		// Convert empty optional fields to NULL
		var original, attachments interface{}
		if msg.OriginalText != "" {
			original = msg.OriginalText
		}
		if len(msg.Attachments) > 0 {
			data, err := json.Marshal(msg.Attachments)
			if err != nil {
				return fmt.Errorf("failed to encode attachments: %w", err)
			}
			attachments = string(data)
		}

		_, err = stmt.ExecContext(ctx, thread.ThreadID, i, msg.ID, string(msg.Type), msg.Text,
			original, msg.Editable, msg.Done, attachments)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// Load loads a thread with its messages.
// Returns a new empty thread if it doesn't exist.
func (s *SqliteStorage) Load(ctx context.Context, threadID string) (*model.Thread, error) {
	var (
		t                model.Thread
		state            string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, title, state, ai_model, active, created_at, updated_at
		FROM threads WHERE thread_id = ?`, threadID).Scan(
		&t.ThreadID, &t.Title, &state, &t.AIModel, &t.Active, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return missingThread(threadID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	t.State = model.ThreadStatus(state)
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()

	messages, err := s.loadMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	t.Messages = messages
	return &t, nil
}

func (s *SqliteStorage) loadMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, text, original_text, editable, done, attachments
		FROM messages WHERE thread_id = ? ORDER BY message_index ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			msg                   model.Message
			msgType               string
			original, attachments sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msgType, &msg.Text, &original, &msg.Editable, &msg.Done, &attachments); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Type = model.MessageType(msgType)
		if original.Valid {
			msg.OriginalText = original.String
		}
		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("invalid attachments for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Delete deletes a thread and its messages.
func (s *SqliteStorage) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns thread summaries, newest first.
func (s *SqliteStorage) List(ctx context.Context) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.thread_id, t.title, t.state, t.ai_model, t.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.thread_id)
		FROM threads t
		ORDER BY t.updated_at DESC, t.thread_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	summaries := []ThreadSummary{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			sum     ThreadSummary
			state   string
			updated int64
		)
		if err := rows.Scan(&sum.ThreadID, &sum.Title, &state, &sum.AIModel, &updated, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		sum.State = model.ThreadStatus(state)
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return summaries, nil
}

// Exists checks if a thread exists.
func (s *SqliteStorage) Exists(ctx context.Context, threadID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM threads WHERE thread_id = ?",
		threadID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check thread existence: %w", err)
	}

	return count > 0, nil
}

// Verify SqliteStorage implements ThreadStorage
var _ ThreadStorage = (*SqliteStorage)(nil)
