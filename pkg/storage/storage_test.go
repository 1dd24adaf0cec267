package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const snapshotDDL = `
CREATE TABLE IF NOT EXISTS api_snapshot (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL UNIQUE,
	timestamp TEXT,
	value1 TEXT,
	value2 TEXT
);`

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(context.Background(), filepath.Join(t.TempDir(), "data.db"), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return g
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.EnsureTable(ctx, snapshotDDL))
	}
}

func TestUpsertReplacesByNaturalKey(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	require.NoError(t, g.EnsureTable(ctx, snapshotDDL))

	require.NoError(t, g.Upsert(ctx, "api_snapshot", map[string]any{
		"date": "2024-12-08", "timestamp": "2024-12-08T00:00:00Z", "value1": "100", "value2": "200",
	}))
	require.NoError(t, g.Upsert(ctx, "api_snapshot", map[string]any{
		"date": "2024-12-08", "timestamp": "2024-12-08T06:00:00Z", "value1": "110", "value2": "210",
	}))

	rows, err := g.Query(ctx, "SELECT date, timestamp, value1, value2 FROM api_snapshot")
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, []string{"date", "timestamp", "value1", "value2"}, rows.Columns)
	assert.Equal(t, []any{"2024-12-08", "2024-12-08T06:00:00Z", "110", "210"}, rows.Values[0])
}

func TestUpsertRejectsBadIdentifiers(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	err := g.Upsert(ctx, "api_snapshot; DROP TABLE x", map[string]any{"date": "x"})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "upsert", se.Op)

	err = g.Upsert(ctx, "api_snapshot", map[string]any{"bad column": "x"})
	require.Error(t, err)
}

func TestUpsertMissingTableIsStorageError(t *testing.T) {
	g := newGateway(t)
	err := g.Upsert(context.Background(), "no_such_table", map[string]any{"date": "2024-12-08"})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "no_such_table", se.Table)
}

func TestRecipients(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	got, err := g.ListRecipients(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	added, err := g.AddRecipient(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = g.AddRecipient(ctx, "alice again", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = g.AddRecipient(ctx, "bob", "bob@example.com")
	require.NoError(t, err)

	got, err = g.ListRecipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Recipient{
		{Name: "alice", Email: "alice@example.com"},
		{Name: "bob", Email: "bob@example.com"},
	}, got)
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New(context.Background(), " ")
	require.Error(t, err)
}

func TestNewRejectsMemoryDatabase(t *testing.T) {
	for _, path := range []string{":memory:", "file::memory:?cache=shared", "file:test.db?mode=memory"} {
		_, err := New(context.Background(), path)
		var se *StorageError
		require.True(t, errors.As(err, &se), path)
		assert.Equal(t, "open", se.Op)
		assert.ErrorContains(t, err, "in-memory")
	}
	assert.False(t, IsMemoryPath(filepath.Join(t.TempDir(), "data.db")))
}
