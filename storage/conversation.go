// Package storage provides thread storage abstraction.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures and protocols

package storage

import (
	"context"
	"sort"
	"time"

	"github.com/richinex/chatkit/model"
)

// ThreadStorage defines the interface for storing conversation threads.
// Implementations never share memory with callers: saved and loaded threads are copies.
type ThreadStorage interface {
	// Save stores the thread, replacing any previous version.
	Save(ctx context.Context, thread *model.Thread) error

	// Load loads a thread by id.
	// Returns a new empty thread with that id if it doesn't exist.
	// Returns error only for storage failures (I/O errors, etc.), not missing threads.
	Load(ctx context.Context, threadID string) (*model.Thread, error)

	// Delete deletes a thread and its messages.
	Delete(ctx context.Context, threadID string) error

	// List returns summaries of all threads, most recently updated first.
	List(ctx context.Context) ([]ThreadSummary, error)

	// Exists checks if a thread exists.
	Exists(ctx context.Context, threadID string) (bool, error)
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ThreadID     string             `json:"thread_id"`
	Title        string             `json:"title"`
	State        model.ThreadStatus `json:"state"`
	AIModel      string             `json:"ai_model"`
	MessageCount int                `json:"message_count"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func summarize(t *model.Thread) ThreadSummary {
	return ThreadSummary{
		ThreadID:     t.ThreadID,
		Title:        t.Title,
		State:        t.State,
		AIModel:      t.AIModel,
		MessageCount: len(t.Messages),
		UpdatedAt:    t.UpdatedAt,
	}
}

// missingThread is what Load returns for an unknown id.
func missingThread(threadID string) *model.Thread {
	t := model.NewThread("")
	t.ThreadID = threadID
	return t
}

func sortNewestFirst(summaries []ThreadSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		}
		return summaries[i].ThreadID < summaries[j].ThreadID
	})
}
