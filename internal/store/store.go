// Package store is the single-connection embedded store (C1). It
// wraps GORM the way the teacher's internal/db package wraps GORM around a
// MySQL driver (internal/db/transaction_recorder.go), swapped to the sqlite
// driver so the store is a single file under data/, safe on a
// network-attached volume (no shared-memory journal), and every query runs
// as a GORM prepared statement (PrepareStmt: true) rather than ad hoc SQL.
package store

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the durable-state owner described in spec §3 ("the store owns
// all durable state").
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the embedded store file at path. The DSN
// pins journal_mode=DELETE rather than WAL: WAL relies on shared-memory
// (-wal/-shm) files that are unsafe on network-attached volumes, which spec
// §4.1 explicitly calls out. Foreign keys are enabled per spec §4.1.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=DELETE&_synchronous=FULL&_foreign_keys=on&_busy_timeout=5000", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying db handle: %w", err)
	}
	// SQLite supports exactly one writer; a single connection avoids
	// SQLITE_BUSY storms under concurrent goroutines. Reads share that one
	// connection too, so reads and writes alike run one at a time.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: underlying db handle: %w", err)
	}
	return sqlDB.Close()
}

// txn runs fn inside a transaction, matching spec §4.1's "all multi-statement
// writes execute in a transaction".
func (s *Store) txn(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

func now() time.Time { return time.Now().UTC() }
