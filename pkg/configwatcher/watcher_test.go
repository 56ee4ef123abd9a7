package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"playstats_backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
server:
  port: "8080"
queue:
  max_attempts: 3
  sweep_interval: 10s
`

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	require.NoError(t, Watch(ctx, dir, 50*time.Millisecond, func(cfg *config.Config) {
		reloaded <- cfg
	}))

	updated := baseConfig + "\n  batch_size: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 7, cfg.Queue.BatchSize)
		assert.Equal(t, 10*time.Second, cfg.Queue.SweepInterval)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Second, func(*config.Config) {})
	assert.Error(t, err)
}
