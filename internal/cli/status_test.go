package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/policy"
)

func TestStatus_Empty(t *testing.T) {
	h := openTestHandle(t)
	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "dev"}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(context.Background(), h))
	})

	assert.Contains(t, output, "Trailmark Status")
	assert.Contains(t, output, "Version:       dev")
	assert.Contains(t, output, "History:       0")
	assert.Contains(t, output, "Bookmarks:     0")
	assert.Contains(t, output, "Permissions:   0 origins")
	assert.Contains(t, output, "Retention:     90 days")
	assert.Contains(t, output, "History index:  ok (0 documents)")
	assert.NotContains(t, output, "Oldest:")
	assert.NotContains(t, output, "Top Domains:")
}

func TestStatus_WithData(t *testing.T) {
	h := openTestHandle(t)
	ctx := context.Background()

	for _, u := range []string{"https://github.com/a", "https://github.com/b", "https://github.com/c", "https://pkg.go.dev/fmt"} {
		_, _, err := h.RecordVisit(ctx, core.Visit{URI: u, Title: u})
		require.NoError(t, err)
	}
	_, err := h.Bookmarks().Save(ctx, "https://go.dev", "Go", "", nil)
	require.NoError(t, err)
	require.NoError(t, h.Policies().Set(ctx, "https://github.com", policy.Clipboard, policy.Deny))

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "dev"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(ctx, h))
	})

	assert.Contains(t, output, "History:       4")
	assert.Contains(t, output, "Bookmarks:     1")
	assert.Contains(t, output, "Permissions:   1 origin\n")
	assert.Contains(t, output, "Oldest:")
	assert.Contains(t, output, "Top Domains:")
	assert.Contains(t, output, "github.com")
	assert.Contains(t, output, "Bookmark index: ok (1 documents)")
}

func TestStatus_JSON(t *testing.T) {
	h := openTestHandle(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	_, _, err := h.RecordVisit(ctx, core.Visit{URI: "https://example.com/", At: at})
	require.NoError(t, err)

	cmd := &StatusCommand{globals: &GlobalFlags{JSON: true}, version: "1.0.0"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(ctx, h))
	})

	var out statusJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out), output)
	assert.Equal(t, "1.0.0", out.Version)
	assert.Equal(t, 1, out.HistoryRecords)
	assert.Equal(t, 1, out.HistoryIndexDocs)
	assert.Equal(t, "2025-06-01T08:00:00Z", out.OldestVisit)
	assert.Equal(t, []string{"history", "bookmarks", "session"}, out.Sources)
	require.Len(t, out.TopDomains, 1)
	assert.Equal(t, domainCountJSON{Domain: "example.com", Count: 1}, out.TopDomains[0])
}

func TestStatus_Metrics(t *testing.T) {
	h := openTestHandle(t)
	_, err := h.Policies().Resolve(policy.Geolocation, "https://example.com")
	require.NoError(t, err)

	cmd := &StatusCommand{Metrics: true, globals: &GlobalFlags{}, version: "dev"}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWith(context.Background(), h))
	})

	assert.Contains(t, output, "# TYPE trailmark_policy_resolutions_total counter")
	assert.Contains(t, output, `trailmark_policy_resolutions_total{decision="ask",kind="geolocation"} 1`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
	assert.Equal(t, "1.0 GB", formatBytes(1<<30))
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		12345:   "12,345",
		1234567: "1,234,567",
	}
	for n, want := range tests {
		assert.Equal(t, want, formatNumber(n))
	}
}
