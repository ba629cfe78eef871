package repository

import (
	"context"
	"sync"
	"time"

	"layoutbot/internal/domain"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	opts Options

	mu     sync.RWMutex
	nextID int64
	rows   map[domain.MessageKey]domain.StoredMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts: opts,
		rows: make(map[domain.MessageKey]domain.StoredMessage),
	}
}

func (s *MemoryStore) Record(_ context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error) {
	if reason := skipReason(msg); reason != "" {
		logSkipped(s.opts.logger(), msg, reason)
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rows[msg.Key()]; ok {
		return &existing, nil
	}
	s.nextID++
	row := newStoredMessage(msg, s.opts.now())
	row.ID = s.nextID
	s.rows[row.Key()] = row
	s.opts.logger().Debug("message recorded", "message_id", row.MessageID, "chat_id", row.ChatID)
	return &row, nil
}

func (s *MemoryStore) Lookup(_ context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	if !ok {
		return nil, false, nil
	}
	return &row, true, nil
}

func (s *MemoryStore) ApplyTranslation(_ context.Context, key domain.MessageKey, translated string, dir domain.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return ErrNotFound
	}
	row.TranslatedText = translated
	row.TranslationType = dir
	s.rows[key] = row
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, row := range s.rows {
		if row.CreatedAt.Before(cutoff) {
			delete(s.rows, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) SizeOnDisk(context.Context) (int64, error) {
	return 0, ErrSizeUnsupported
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
