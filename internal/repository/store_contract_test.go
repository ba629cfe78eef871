package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"layoutbot/internal/domain"
)

// fakeClock is a settable time source shared by store tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func inbound(messageID, chatID int64, text string) domain.InboundMessage {
	return domain.InboundMessage{
		MessageID:      messageID,
		ConversationID: chatID,
		SenderID:       42,
		SenderName:     "alice",
		Text:           text,
	}
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("record and lookup", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		stored, err := s.Record(ctx, inbound(1, 100, "ghbdtn"))
		require.NoError(t, err)
		require.NotNil(t, stored)
		require.Equal(t, "ghbdtn", stored.OriginalText)
		require.Empty(t, stored.TranslatedText)
		require.Equal(t, domain.DirectionNone, stored.TranslationType)
		require.Equal(t, int64(42), stored.UserID)
		require.True(t, clock.Now().Equal(stored.CreatedAt))

		got, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 100})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "ghbdtn", got.OriginalText)
		require.Equal(t, time.UTC, got.CreatedAt.Location())
	})

	t.Run("empty text is skipped", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		stored, err := s.Record(ctx, inbound(1, 100, ""))
		require.NoError(t, err)
		require.Nil(t, stored)
		_, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 100})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("automated sender is skipped", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		msg := inbound(1, 100, "hello")
		msg.SenderIsAutomated = true
		stored, err := s.Record(ctx, msg)
		require.NoError(t, err)
		require.Nil(t, stored)
		_, ok, err := s.Lookup(ctx, msg.Key())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("lookup unknown key", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		got, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 404, ChatID: 1})
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, got)
	})

	t.Run("key is scoped to the chat", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		_, err := s.Record(ctx, inbound(1, 100, "first chat"))
		require.NoError(t, err)
		_, err = s.Record(ctx, inbound(1, 200, "second chat"))
		require.NoError(t, err)

		a, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 100})
		require.NoError(t, err)
		require.True(t, ok)
		b, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 200})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "first chat", a.OriginalText)
		require.Equal(t, "second chat", b.OriginalText)
	})

	t.Run("recording an existing key keeps the original", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		_, err := s.Record(ctx, inbound(1, 100, "original"))
		require.NoError(t, err)
		again, err := s.Record(ctx, inbound(1, 100, "edited"))
		require.NoError(t, err)
		require.Equal(t, "original", again.OriginalText)
	})

	t.Run("apply translation", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		_, err := s.Record(ctx, inbound(1, 100, "ghbdtn"))
		require.NoError(t, err)
		key := domain.MessageKey{MessageID: 1, ChatID: 100}
		require.NoError(t, s.ApplyTranslation(ctx, key, "привіт", domain.DirectionToTarget))

		got, ok, err := s.Lookup(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "привіт", got.TranslatedText)
		require.Equal(t, domain.DirectionToTarget, got.TranslationType)
		require.Equal(t, "ghbdtn", got.OriginalText)

		// A later request may overwrite the translation.
		require.NoError(t, s.ApplyTranslation(ctx, key, "ghbdtn", domain.DirectionToSource))
		got, _, err = s.Lookup(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.DirectionToSource, got.TranslationType)
	})

	t.Run("apply translation to unknown key", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		_, err := s.Record(ctx, inbound(1, 100, "ghbdtn"))
		require.NoError(t, err)
		err = s.ApplyTranslation(ctx, domain.MessageKey{MessageID: 2, ChatID: 100}, "x", domain.DirectionToTarget)
		require.ErrorIs(t, err, ErrNotFound)

		got, _, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 100})
		require.NoError(t, err)
		require.Empty(t, got.TranslatedText)
		require.Equal(t, domain.DirectionNone, got.TranslationType)
	})

	t.Run("delete older than", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		_, err := s.Record(ctx, inbound(1, 100, "old"))
		require.NoError(t, err)
		clock.Advance(time.Hour)
		boundary := clock.Now()
		_, err = s.Record(ctx, inbound(2, 100, "at boundary"))
		require.NoError(t, err)
		clock.Advance(time.Hour)
		_, err = s.Record(ctx, inbound(3, 100, "new"))
		require.NoError(t, err)

		n, err := s.DeleteOlderThan(ctx, boundary)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		n, err = s.DeleteOlderThan(ctx, boundary)
		require.NoError(t, err)
		require.Zero(t, n)

		_, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 100})
		require.NoError(t, err)
		require.False(t, ok)
		for _, id := range []int64{2, 3} {
			_, ok, err := s.Lookup(ctx, domain.MessageKey{MessageID: id, ChatID: 100})
			require.NoError(t, err)
			require.True(t, ok, "message %d", id)
		}
	})

	t.Run("delete older than now clears everything older", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		for i := int64(1); i <= 3; i++ {
			_, err := s.Record(ctx, inbound(i, 100, "text"))
			require.NoError(t, err)
			clock.Advance(time.Minute)
		}
		n, err := s.DeleteOlderThan(ctx, clock.Now())
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
		n, err = s.DeleteOlderThan(ctx, clock.Now())
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		require.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		return NewMemoryStore(Options{Now: clock.Now})
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"), Options{Now: clock.Now})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
