package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"layoutbot/internal/domain"
)

var (
	// ErrNotFound is returned by ApplyTranslation when no message matches the key.
	ErrNotFound = errors.New("repository: message not found")
	// ErrSizeUnsupported is returned by SizeOnDisk for server-backed stores.
	ErrSizeUnsupported = errors.New("repository: size on disk not supported")
)

// Store persists inbound messages and their translations.
type Store interface {
	// Record stores msg and returns the stored row. Empty messages and
	// messages from automated senders are skipped with a nil record and nil
	// error. Recording an existing key returns the existing row unchanged.
	Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error)
	// Lookup returns (nil, false, nil) when no row matches.
	Lookup(ctx context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error)
	ApplyTranslation(ctx context.Context, key domain.MessageKey, translated string, dir domain.Direction) error
	// DeleteOlderThan removes rows created strictly before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	SizeOnDisk(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options are shared by all Store implementations.
type Options struct {
	Logger *slog.Logger
	// Now defaults to time.Now; stored timestamps are always UTC.
	Now func() time.Time
	// Horizon sets the DynamoDB ttl attribute. Ignored by other stores.
	Horizon time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

const (
	schemeMemory   = "memory://"
	schemeDynamoDB = "dynamodb://"
	schemeSQLite   = "sqlite://"
)

// DefaultDSN is the embedded database used when DATABASE_URL is not set.
const DefaultDSN = "sqlite:///translator_bot.db"

// Open selects a Store implementation from dsn:
//
//	sqlite:///path/to.db, file:path, plain path -> SQLite file
//	postgres://..., postgresql://...           -> Postgres via gorm
//	dynamodb://table                            -> DynamoDB table
//	memory://                                   -> in-process map
func Open(ctx context.Context, dsn string, opts Options) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultDSN
	}
	switch {
	case strings.HasPrefix(dsn, schemeMemory):
		return NewMemoryStore(opts), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewGormStore(dsn, opts)
	case strings.HasPrefix(dsn, schemeDynamoDB):
		table := strings.TrimPrefix(dsn, schemeDynamoDB)
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: load aws config: %w", err)
		}
		return New(dynamodb.NewFromConfig(cfg), table, opts)
	default:
		return NewSQLiteStore(SQLitePath(dsn), opts)
	}
}

// SQLitePath strips the URL forms accepted for SQLite DSNs.
func SQLitePath(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, schemeSQLite):
		return strings.TrimPrefix(dsn, schemeSQLite+"/")
	case strings.HasPrefix(dsn, "file:"):
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return path
	}
	return dsn
}

// skipReason reports why msg must not be recorded, or "" when it may be.
func skipReason(msg domain.InboundMessage) string {
	if strings.TrimSpace(msg.Text) == "" {
		return "empty_text"
	}
	if msg.SenderIsAutomated {
		return "automated_sender"
	}
	return ""
}

func logSkipped(log *slog.Logger, msg domain.InboundMessage, reason string) {
	log.Info("skipping message", "reason", reason,
		"message_id", msg.MessageID, "chat_id", msg.ConversationID, "sender", msg.SenderName)
}

func newStoredMessage(msg domain.InboundMessage, createdAt time.Time) domain.StoredMessage {
	return domain.StoredMessage{
		MessageID:       msg.MessageID,
		ChatID:          msg.ConversationID,
		UserID:          msg.SenderID,
		OriginalText:    msg.Text,
		TranslationType: domain.DirectionNone,
		CreatedAt:       createdAt,
	}
}
