package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func quietGorm() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

func TestGormStore_Contract_SQLite(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gorm.db")), quietGorm())
		require.NoError(t, err)
		s, err := newGormStore(db, Options{Now: clock.Now})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

// TEST_POSTGRES_DSN points at a disposable database; the messages table is
// truncated before every case.
func TestGormStore_Contract_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		db, err := gorm.Open(postgres.Open(dsn), quietGorm())
		require.NoError(t, err)
		s, err := newGormStore(db, Options{Now: clock.Now})
		require.NoError(t, err)
		require.NoError(t, db.Exec("TRUNCATE TABLE messages").Error)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestGormStore_SizeUnsupported(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gorm.db")), quietGorm())
	require.NoError(t, err)
	s, err := newGormStore(db, Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SizeOnDisk(context.Background())
	require.ErrorIs(t, err, ErrSizeUnsupported)
}

func TestNewGormStore_NilDB(t *testing.T) {
	_, err := newGormStore(nil, Options{})
	require.ErrorContains(t, err, "must not be nil")
}
