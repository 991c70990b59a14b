package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/trailmark/internal/config"
	"github.com/runnerr0/trailmark/internal/core"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// openTestHandle opens a core in a temporary data directory.
func openTestHandle(t *testing.T) *core.Handle {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.SyncWrites = false
	cfg.Storage.GCIntervalMins = 0
	h, err := core.Open(context.Background(), cfg, core.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

// tempArgs returns global flags that keep a RunWithArgs call inside a
// temporary directory.
func tempArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{"--config", dir + "/trailmark.yaml", "--data-dir", dir + "/data"}
}
