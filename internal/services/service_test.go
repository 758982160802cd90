package services

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avelar/bookshelf-be/internal/database"
)

// newTestDB opens a fresh in-memory sqlite database with the schema applied.
// Connections are capped at one so the in-memory database is shared.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}
