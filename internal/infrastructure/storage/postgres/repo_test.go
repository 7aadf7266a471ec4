package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"coinbook/internal/infrastructure/storage/storagetest"
)

// Runs only against a scratch database: the contract needs an empty coinbook_records table.
func TestPostgresRepoContract(t *testing.T) {
	dsn := os.Getenv("COINBOOK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COINBOOK_TEST_POSTGRES_DSN not set")
	}
	repo, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	_, err = repo.db.ExecContext(context.Background(), `DELETE FROM coinbook_records`)
	require.NoError(t, err)

	storagetest.Run(t, repo)
}
