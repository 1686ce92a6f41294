package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenCreatesSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "eventure.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"users", "organizers", "organizer_events", "sponsors", "posts",
		"post_likes", "comments", "chat_rooms", "chat_messages", "notifications",
	} {
		var n int
		err := db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventure.db")

	db, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, MigrateUp(db, zap.NewNop()))
	require.NoError(t, db.Close())

	db, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
}

func TestMigrateDownDropsTables(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "eventure.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateDown(db, zap.NewNop()))

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'posts'"))
	assert.Zero(t, n)
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "eventure.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO posts (id, user_id, created_at, updated_at) VALUES ('p1', 'nobody', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "eventure.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	boom := errors.New("boom")
	err = WithTx(ctx, db, zap.NewNop(), "insert then fail", func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO users (id, email, password_hash, role, display_name, created_at, updated_at)
			VALUES ('u1', 'a@example.com', 'x', 'organizer', 'A', ?, ?)`, time.Now(), time.Now())
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM users"))
	assert.Equal(t, 0, n)
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "eventure.db"), zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	insert := `INSERT INTO users (id, email, password_hash, role, display_name, created_at, updated_at)
		VALUES (?, 'a@example.com', 'x', 'organizer', 'A', ?, ?)`
	_, err = db.Exec(insert, "u1", time.Now(), time.Now())
	require.NoError(t, err)

	_, err = db.Exec(insert, "u2", time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}
