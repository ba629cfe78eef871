package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"layoutbot/internal/domain"
)

// sqliteTimeLayout is fixed width so that created_at compares correctly as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id       INTEGER NOT NULL,
	chat_id          INTEGER NOT NULL,
	user_id          INTEGER NOT NULL,
	original_text    TEXT    NOT NULL,
	translated_text  TEXT    NOT NULL DEFAULT '',
	translation_type TEXT    NOT NULL DEFAULT 'none',
	created_at       TEXT    NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_message_chat ON messages (message_id, chat_id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
`

const sqliteSelect = `SELECT id, message_id, chat_id, user_id, original_text, translated_text, translation_type, created_at FROM messages`

// SQLiteStore keeps messages in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts Options
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One connection serialises all writes to the file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db, path: path, opts: opts}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error) {
	if reason := skipReason(msg); reason != "" {
		logSkipped(s.opts.logger(), msg, reason)
		return nil, nil
	}
	row := newStoredMessage(msg, s.opts.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, chat_id, user_id, original_text, translated_text, translation_type, created_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT (message_id, chat_id) DO NOTHING`,
		row.MessageID, row.ChatID, row.UserID, row.OriginalText, string(row.TranslationType), formatSQLiteTime(row.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("repository: Record insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.opts.logger().Debug("message already recorded", "message_id", row.MessageID, "chat_id", row.ChatID)
	}
	stored, ok, err := s.Lookup(ctx, row.Key())
	if err != nil {
		return nil, fmt.Errorf("repository: Record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("repository: Record: row %d/%d vanished after insert", row.ChatID, row.MessageID)
	}
	return stored, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error) {
	r := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE message_id = ? AND chat_id = ? ORDER BY id LIMIT 1`, key.MessageID, key.ChatID)
	var (
		m         domain.StoredMessage
		dir       string
		createdAt string
	)
	if err := r.Scan(&m.ID, &m.MessageID, &m.ChatID, &m.UserID, &m.OriginalText, &m.TranslatedText, &dir, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("repository: Lookup: %w", err)
	}
	ts, err := time.ParseInLocation(sqliteTimeLayout, createdAt, time.UTC)
	if err != nil {
		return nil, false, fmt.Errorf("repository: Lookup decode created_at: %w", err)
	}
	m.TranslationType = domain.Direction(dir)
	m.CreatedAt = ts
	return &m, true, nil
}

func (s *SQLiteStore) ApplyTranslation(ctx context.Context, key domain.MessageKey, translated string, dir domain.Direction) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET translated_text = ?, translation_type = ? WHERE message_id = ? AND chat_id = ?`,
		translated, string(dir), key.MessageID, key.ChatID)
	if err != nil {
		return fmt.Errorf("repository: ApplyTranslation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: ApplyTranslation rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, formatSQLiteTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("repository: DeleteOlderThan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: DeleteOlderThan rows affected: %w", err)
	}
	return n, nil
}

// SizeOnDisk returns the size of the database file plus its write-ahead log.
func (s *SQLiteStore) SizeOnDisk(context.Context) (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		fi, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("repository: SizeOnDisk: %w", err)
		}
		total += fi.Size()
	}
	return total, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
