package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/config"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spacetime.yaml")
	contents := `
storage:
  data_dir: /var/lib/spacetime
server:
  listen_addr: "0.0.0.0:4000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/spacetime", cfg.Storage.DataDir)
	assert.Equal(t, "0.0.0.0:4000", cfg.Server.ListenAddr)
	assert.Equal(t, 128, cfg.Subscription.OutboundQueueDepth, "unset fields keep their default")
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveSegmentSize(t *testing.T) {
	cfg := config.Default()
	cfg.Commitlog.SegmentMaxBytes = 0
	assert.Error(t, cfg.Validate())
}
