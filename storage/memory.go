// Package storage provides in-memory thread storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sync"

	"github.com/richinex/chatkit/model"
)

// InMemoryStorage implements ThreadStorage using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu      sync.RWMutex
	threads map[string]*model.Thread
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		threads: make(map[string]*model.Thread),
	}
}

// Save stores a deep copy of the thread.
func (s *InMemoryStorage) Save(ctx context.Context, thread *model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[thread.ThreadID] = thread.Clone()
	return nil
}

// Load returns a copy of the stored thread, or a new empty one.
func (s *InMemoryStorage) Load(ctx context.Context, threadID string) (*model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return missingThread(threadID), nil
	}
	return t.Clone(), nil
}

// Delete deletes a thread.
func (s *InMemoryStorage) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}

// List returns thread summaries, newest first.
func (s *InMemoryStorage) List(ctx context.Context) ([]ThreadSummary, error) {
	s.mu.RLock()
	summaries := make([]ThreadSummary, 0, len(s.threads))
	for _, t := range s.threads {
		summaries = append(summaries, summarize(t))
	}
	s.mu.RUnlock()

	sortNewestFirst(summaries)
	return summaries, nil
}

// Exists checks if a thread exists.
func (s *InMemoryStorage) Exists(ctx context.Context, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.threads[threadID]
	return ok, nil
}

// Verify InMemoryStorage implements ThreadStorage
var _ ThreadStorage = (*InMemoryStorage)(nil)
