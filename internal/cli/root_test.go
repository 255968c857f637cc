package cmd_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmd "github.com/rohmanhakim/webcrawler/internal/cli"
)

func TestInitConfig_DefaultsWhenNoFlagsSet(t *testing.T) {
	cmd.ResetFlags()
	t.Cleanup(cmd.ResetFlags)

	cfg, err := cmd.InitConfigWithError()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.MaxPages())
	assert.Equal(t, 5, cfg.MaxDepth())
	assert.True(t, cfg.RespectRobotsTxt())
	assert.Equal(t, 4, cfg.WorkerCount())
}

func TestInitConfig_FlagOverrides(t *testing.T) {
	cmd.ResetFlags()
	t.Cleanup(cmd.ResetFlags)

	cmd.SetMaxPagesForTest(25)
	cmd.SetMaxDepthForTest(2)
	cmd.SetUserAgentForTest("cli-bot/1.0")
	cmd.SetWorkerCountForTest(7)
	cmd.SetOutputDirForTest("/tmp/crawl-out")

	cfg, err := cmd.InitConfigWithError()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.MaxPages())
	assert.Equal(t, 2, cfg.MaxDepth())
	assert.Equal(t, "cli-bot/1.0", cfg.UserAgent())
	assert.Equal(t, 7, cfg.WorkerCount())
	assert.Equal(t, "/tmp/crawl-out", cfg.OutputDir())
}

func TestInitConfig_FromFile(t *testing.T) {
	cmd.ResetFlags()
	t.Cleanup(cmd.ResetFlags)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "max_pages": 12,
  "request_timeout_ms": 2000,
  "user_agent": "file-bot/1.0"
}`), 0644))

	cmd.SetConfigFileForTest(path)

	cfg, err := cmd.InitConfigWithError()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.MaxPages())
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "file-bot/1.0", cfg.UserAgent())
}

func TestInitConfig_FileErrors(t *testing.T) {
	cmd.ResetFlags()
	t.Cleanup(cmd.ResetFlags)

	cmd.SetConfigFileForTest("/nonexistent/path.json")

	_, err := cmd.InitConfigWithError()
	assert.Error(t, err)
}
