// Package retention prunes the message store by age on a fixed schedule and
// by size when the store grows past a ceiling.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"layoutbot/internal/observability"
	"layoutbot/internal/repository"
)

const (
	DefaultHorizon           = 24 * time.Hour
	DefaultCleanupInterval   = 24 * time.Hour
	DefaultSizeCheckInterval = 6 * time.Hour
	DefaultMaxSizeBytes      = 400 << 20

	triggerAge  = "age"
	triggerSize = "size"
)

// Store is the part of repository.Store retention needs.
type Store interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	SizeOnDisk(ctx context.Context) (int64, error)
}

type Config struct {
	// Horizon is the maximum age kept by both triggers.
	Horizon           time.Duration
	CleanupInterval   time.Duration
	SizeCheckInterval time.Duration
	MaxSizeBytes      int64
	// InitialDelay is the wait before the first pass of both triggers.
	// Zero runs them as soon as Start is called.
	InitialDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.SizeCheckInterval <= 0 {
		c.SizeCheckInterval = DefaultSizeCheckInterval
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	return c
}

// Run describes the outcome of the most recent retention pass.
type Run struct {
	Trigger string
	At      time.Time
	Deleted int64
	Err     error
}

type Manager struct {
	cfg   Config
	store Store
	log   *slog.Logger
	now   func() time.Time

	mu   sync.Mutex
	last Run
}

func NewManager(cfg Config, store Store, log *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("retention: store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg.withDefaults(), store: store, log: log, now: time.Now}, nil
}

func (m *Manager) Config() Config { return m.cfg }

// LastRun returns the most recent pass; the zero Run when none happened yet.
func (m *Manager) LastRun() Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// RunAge deletes every message older than the horizon.
func (m *Manager) RunAge(ctx context.Context) (int64, error) {
	return m.cleanup(ctx, triggerAge)
}

// RunSize runs the age cleanup when the store is larger than the ceiling.
// Stores that cannot report a size are skipped without error.
func (m *Manager) RunSize(ctx context.Context) (bool, error) {
	size, err := m.store.SizeOnDisk(ctx)
	if errors.Is(err, repository.ErrSizeUnsupported) {
		m.log.Debug("size check skipped: store reports no size")
		observability.RetentionRunsTotal.WithLabelValues(triggerSize, "skipped").Inc()
		return false, nil
	}
	if err != nil {
		observability.RetentionRunsTotal.WithLabelValues(triggerSize, "error").Inc()
		m.record(Run{Trigger: triggerSize, At: m.now().UTC(), Err: err})
		return false, fmt.Errorf("retention: size check: %w", err)
	}
	observability.StoreSizeBytes.Set(float64(size))
	if size <= m.cfg.MaxSizeBytes {
		m.log.Debug("store size within limit", "size_bytes", size, "max_bytes", m.cfg.MaxSizeBytes)
		return false, nil
	}
	m.log.Warn("store size over limit, cleaning up", "size_bytes", size, "max_bytes", m.cfg.MaxSizeBytes)
	if _, err := m.cleanup(ctx, triggerSize); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Manager) cleanup(ctx context.Context, trigger string) (int64, error) {
	now := m.now().UTC()
	cutoff := now.Add(-m.cfg.Horizon)
	deleted, err := m.store.DeleteOlderThan(ctx, cutoff)
	m.record(Run{Trigger: trigger, At: now, Deleted: deleted, Err: err})
	if err != nil {
		observability.RetentionRunsTotal.WithLabelValues(trigger, "error").Inc()
		return deleted, fmt.Errorf("retention: cleanup: %w", err)
	}
	observability.RetentionRunsTotal.WithLabelValues(trigger, "ok").Inc()
	observability.RetentionDeletedTotal.Add(float64(deleted))
	m.log.Info("retention cleanup done", "trigger", trigger, "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

func (m *Manager) record(r Run) {
	m.mu.Lock()
	m.last = r
	m.mu.Unlock()
}

// Start runs one age pass and one size check once InitialDelay has elapsed,
// then repeats each on its own interval until ctx is done. Failures are logged
// and the next tick tries again.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("retention started",
		"horizon", m.cfg.Horizon,
		"initial_delay", m.cfg.InitialDelay,
		"cleanup_interval", m.cfg.CleanupInterval,
		"size_check_interval", m.cfg.SizeCheckInterval,
		"max_size_bytes", m.cfg.MaxSizeBytes)

	if m.cfg.InitialDelay > 0 {
		delay := time.NewTimer(m.cfg.InitialDelay)
		select {
		case <-ctx.Done():
			delay.Stop()
			m.log.Info("retention stopped")
			return nil
		case <-delay.C:
		}
	}
	m.scheduledAge(ctx)
	m.scheduledSize(ctx)

	age := time.NewTicker(m.cfg.CleanupInterval)
	defer age.Stop()
	size := time.NewTicker(m.cfg.SizeCheckInterval)
	defer size.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("retention stopped")
			return nil
		case <-age.C:
			m.scheduledAge(ctx)
		case <-size.C:
			m.scheduledSize(ctx)
		}
	}
}

func (m *Manager) scheduledAge(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.RunAge(ctx); err != nil {
		m.log.Error("scheduled cleanup failed", "err", err)
	}
}

func (m *Manager) scheduledSize(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.RunSize(ctx); err != nil {
		m.log.Error("scheduled size check failed", "err", err)
	}
}
