//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "leadfetch.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg = &config.Config{Redis: config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"}}

	rdb, err := initRedis(context.Background())
	require.NoError(t, err)
	defer rdb.Close() //nolint:errcheck
}

func TestInitRedis_BadURL(t *testing.T) {
	cfg = &config.Config{Redis: config.RedisConfig{URL: "not a url"}}

	_, err := initRedis(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestQueueConfig(t *testing.T) {
	qc := queueConfig(config.WorkerConfig{
		Stream:          "s",
		Group:           "g",
		Consumer:        "w1",
		BlockMs:         250,
		MaxAttempts:     4,
		RetryBaseSecs:   30,
		ReclaimIdleSecs: 600,
	})

	assert.Equal(t, "s", qc.Stream)
	assert.Equal(t, "g", qc.Group)
	assert.Equal(t, "w1", qc.Consumer)
	assert.Equal(t, 250*time.Millisecond, qc.Block)
	assert.Equal(t, 4, qc.MaxAttempts)
	assert.Equal(t, 30*time.Second, qc.RetryBase)
	assert.Equal(t, 10*time.Minute, qc.ReclaimIdle)
}

func TestNewPipeline_WiresWithoutOptionalClients(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "p.db")},
		Redis: config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"},
		Fetch: config.FetchConfig{LockTTLSecs: 300, PrepareConcurrency: 2, InsertChunkSize: 100},
	}
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	rdb, err := initRedis(ctx)
	require.NoError(t, err)
	defer rdb.Close() //nolint:errcheck

	assert.NotNil(t, newPipeline(st, rdb))
	assert.NotNil(t, newQueue(rdb))
}
