package database

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. reason is only used for logging.
func WithTx(ctx context.Context, db *sqlx.DB, logger *zap.Logger, reason string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction (%s): %w", reason, err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic in transaction",
				zap.String("reason", reason),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			tx.Rollback()
			panic(p)
		}
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("transaction rollback error", zap.String("reason", reason), zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction (%s): %w", reason, err)
	}
	committed = true
	return nil
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
