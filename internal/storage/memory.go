package storage

import (
	"context"
	"sync"
	"time"
)

type chatSession struct {
	token      string
	lastUsedAt time.Time
}

type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[int64]chatSession
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[int64]chatSession),
	}
}

func (s *MemoryStorage) LoadToken(ctx context.Context, chatID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, exists := s.sessions[chatID]; exists {
		return session.token, nil
	}
	return "", ErrNoToken
}

func (s *MemoryStorage) SaveToken(ctx context.Context, chatID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[chatID] = chatSession{
		token:      token,
		lastUsedAt: time.Now(),
	}
	return nil
}

func (s *MemoryStorage) DeleteToken(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, chatID)
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
