package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// NewSQLite opens the SQLite database at path (":memory:" for a private in-memory db),
// enables foreign keys and applies the embedded schema. The pool holds a single
// connection so every caller sees the same in-memory db.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := MigrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("SQLite database ready", zap.String("path", path))
	}
	return db, nil
}
