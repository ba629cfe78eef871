package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"layoutbot/internal/domain"
	"layoutbot/internal/repository"
)

type fakeStore struct {
	mu       sync.Mutex
	size     int64
	sizeErr  error
	delErr   error
	deleted  int64
	cutoffs  []time.Time
	sizeHits int
}

func (f *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.delErr
}

func (f *fakeStore) SizeOnDisk(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeHits++
	return f.size, f.sizeErr
}

func (f *fakeStore) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs), f.sizeHits
}

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, cfg Config, s Store) *Manager {
	t.Helper()
	m, err := NewManager(cfg, s, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestNewManager_Defaults(t *testing.T) {
	m := newTestManager(t, Config{}, &fakeStore{})
	cfg := m.Config()
	require.Equal(t, 24*time.Hour, cfg.Horizon)
	require.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	require.Equal(t, 6*time.Hour, cfg.SizeCheckInterval)
	require.Equal(t, int64(400*1024*1024), cfg.MaxSizeBytes)

	_, err := NewManager(Config{}, nil, nil)
	require.Error(t, err)
}

func TestRunAge_UsesHorizon(t *testing.T) {
	s := &fakeStore{deleted: 7}
	m := newTestManager(t, Config{}, s)

	n, err := m.RunAge(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.Equal(t, []time.Time{fixedNow.Add(-24 * time.Hour)}, s.cutoffs)

	last := m.LastRun()
	require.Equal(t, "age", last.Trigger)
	require.Equal(t, int64(7), last.Deleted)
	require.NoError(t, last.Err)
}

func TestRunAge_Error(t *testing.T) {
	s := &fakeStore{delErr: errors.New("database is locked")}
	m := newTestManager(t, Config{}, s)
	_, err := m.RunAge(context.Background())
	require.Error(t, err)
	require.Error(t, m.LastRun().Err)
}

func TestRunSize_BelowLimit(t *testing.T) {
	s := &fakeStore{size: 100}
	m := newTestManager(t, Config{MaxSizeBytes: 100}, s)
	ran, err := m.RunSize(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Empty(t, s.cutoffs)
}

func TestRunSize_AboveLimitUsesSameHorizon(t *testing.T) {
	s := &fakeStore{size: 101}
	m := newTestManager(t, Config{MaxSizeBytes: 100, Horizon: 12 * time.Hour}, s)
	ran, err := m.RunSize(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, []time.Time{fixedNow.Add(-12 * time.Hour)}, s.cutoffs)
	require.Equal(t, "size", m.LastRun().Trigger)
}

func TestRunSize_Unsupported(t *testing.T) {
	s := &fakeStore{sizeErr: repository.ErrSizeUnsupported}
	m := newTestManager(t, Config{}, s)
	ran, err := m.RunSize(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Empty(t, s.cutoffs)
}

func TestRunSize_Error(t *testing.T) {
	s := &fakeStore{sizeErr: errors.New("stat failed")}
	m := newTestManager(t, Config{}, s)
	_, err := m.RunSize(context.Background())
	require.Error(t, err)
}

func TestStart_TicksAndStops(t *testing.T) {
	s := &fakeStore{size: 1}
	m := newTestManager(t, Config{
		CleanupInterval:   10 * time.Millisecond,
		SizeCheckInterval: 10 * time.Millisecond,
	}, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		ages, sizes := s.calls()
		return ages >= 2 && sizes >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_FirstPassRunsAfterInitialDelay(t *testing.T) {
	s := &fakeStore{size: 1}
	m := newTestManager(t, Config{
		CleanupInterval:   time.Hour,
		SizeCheckInterval: time.Hour,
		InitialDelay:      10 * time.Millisecond,
	}, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		ages, sizes := s.calls()
		return ages == 1 && sizes == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, triggerAge, m.LastRun().Trigger)

	cancel()
	require.NoError(t, <-done)
}

func TestStart_NoDelayRunsImmediately(t *testing.T) {
	s := &fakeStore{size: 1}
	m := newTestManager(t, Config{CleanupInterval: time.Hour, SizeCheckInterval: time.Hour}, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		ages, sizes := s.calls()
		return ages == 1 && sizes == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestStart_CancelDuringInitialDelay(t *testing.T) {
	m := newTestManager(t, Config{InitialDelay: time.Hour}, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Start(ctx))
}

func TestRetention_WithSQLiteStore(t *testing.T) {
	store, err := repository.NewSQLiteStore(t.TempDir()+"/bot.db", repository.Options{
		Now: func() time.Time { return fixedNow.Add(-48 * time.Hour) },
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Record(ctx, domain.InboundMessage{MessageID: 1, ConversationID: 1, SenderID: 1, Text: "old"})
	require.NoError(t, err)

	m := newTestManager(t, Config{}, store)
	n, err := m.RunAge(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok, err := store.Lookup(ctx, domain.MessageKey{MessageID: 1, ChatID: 1})
	require.NoError(t, err)
	require.False(t, ok)
}
