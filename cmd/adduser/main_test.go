package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/storage"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Database.DBPath = filepath.Join(t.TempDir(), "data.db")
	return cfg
}

func TestAddUserRejectsInvalidEmail(t *testing.T) {
	cfg := testConfig(t)
	for _, email := range []string{"", "not-an-email", "alice@"} {
		added, err := addUser(context.Background(), cfg, zaptest.NewLogger(t), "alice", email)
		assert.Error(t, err, email)
		assert.False(t, added)
	}
	// 校验失败时不创建数据库
	_, err := os.Stat(cfg.Database.DBPath)
	assert.True(t, os.IsNotExist(err))
}

func TestAddUserDuplicate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	log := zaptest.NewLogger(t)

	added, err := addUser(ctx, cfg, log, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = addUser(ctx, cfg, log, "alice again", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, added)

	g, err := storage.New(ctx, cfg.Database.DBPath)
	require.NoError(t, err)
	got, err := g.ListRecipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []storage.Recipient{{Name: "alice", Email: "alice@example.com"}}, got)
}

func TestAddUserRejectsMemoryDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DBPath = ":memory:"
	_, err := addUser(context.Background(), cfg, zaptest.NewLogger(t), "alice", "alice@example.com")
	assert.ErrorContains(t, err, "in-memory")
}
