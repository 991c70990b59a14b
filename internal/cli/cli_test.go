package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseOnly parses args without running the matched command.
func parseOnly(t *testing.T, args ...string) (*GlobalFlags, *commands, error) {
	t.Helper()
	p, globals, cmds := buildParser("test")
	p.CommandHandler = func(goflags.Commander, []string) error { return nil }
	_, err := p.ParseArgs(args)
	return globals, cmds, err
}

func TestVersionFlag(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := RunWithArgs("0.1.0-test", []string{"--version"})

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	assert.NoError(t, err)
	assert.Contains(t, output, "trailmark 0.1.0-test")
}

func TestVersionOutputFormat(t *testing.T) {
	output := captureOutput(t, func() {
		_ = RunWithArgs("1.2.3", []string{"--version"})
	})
	assert.Equal(t, "trailmark 1.2.3", strings.TrimSpace(output))
}

func TestAllSubcommandsExist(t *testing.T) {
	expected := []string{"status", "search", "suggest", "history", "prune", "bookmark", "policy", "sessions", "reindex", "purge", "mcp"}
	parser, _, _ := buildParser("test")

	for _, name := range expected {
		cmd := parser.Find(name)
		assert.NotNil(t, cmd, "subcommand %q should exist", name)
	}
}

func TestNestedSubcommandsExist(t *testing.T) {
	parser, _, _ := buildParser("test")
	nested := map[string][]string{
		"history":  {"add", "list", "show", "delete"},
		"bookmark": {"add", "list", "delete"},
		"policy":   {"get", "set", "delete", "list"},
		"sessions": {"list", "show"},
	}
	for group, subs := range nested {
		g := parser.Find(group)
		require.NotNil(t, g, group)
		for _, sub := range subs {
			assert.NotNil(t, g.Find(sub), "%s %s should exist", group, sub)
		}
	}
}

func TestGroupRequiresSubcommand(t *testing.T) {
	_, _, err := parseOnly(t, "history")
	require.Error(t, err)
}

func TestUnknownSubcommandFails(t *testing.T) {
	_, _, err := parseOnly(t, "nonexistent")
	require.Error(t, err)
}

func TestHelpFlagDoesNotError(t *testing.T) {
	err := RunWithArgs("test", []string{"--help"})
	assert.NoError(t, err)
}

func TestGlobalFlags(t *testing.T) {
	globals, _, err := parseOnly(t, "--json", "--verbose", "--config", "/tmp/test.yaml", "--data-dir", "/tmp/data", "status")
	require.NoError(t, err)
	assert.True(t, globals.JSON)
	assert.True(t, globals.Verbose)
	assert.Equal(t, "/tmp/test.yaml", globals.Config)
	assert.Equal(t, "/tmp/data", globals.DataDir)
}

func TestSearchFlagsDefaults(t *testing.T) {
	_, c, err := parseOnly(t, "search", "my query")
	require.NoError(t, err)
	assert.Equal(t, 10, c.Search.Limit)
	assert.Empty(t, c.Search.Since)
	assert.False(t, c.Search.Bookmarks)
}

func TestSearchFilterFlags(t *testing.T) {
	_, c, err := parseOnly(t, "search", "--bookmarks", "--domain", "github.com", "--since", "7d", "--limit", "3", "query")
	require.NoError(t, err)
	assert.True(t, c.Search.Bookmarks)
	assert.Equal(t, "github.com", c.Search.Domain)
	assert.Equal(t, "7d", c.Search.Since)
	assert.Equal(t, 3, c.Search.Limit)
}

func TestHistoryAddFlags(t *testing.T) {
	_, c, err := parseOnly(t, "history", "add", "--url", "https://example.com", "--title", "Test", "--original-url", "http://example.com", "--at", "2025-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", c.HistoryAdd.URL)
	assert.Equal(t, "Test", c.HistoryAdd.Title)
	assert.Equal(t, "http://example.com", c.HistoryAdd.OriginalURL)
	assert.Equal(t, "2025-01-02T03:04:05Z", c.HistoryAdd.At)
}

func TestHistoryShowFormatFlag(t *testing.T) {
	_, c, err := parseOnly(t, "history", "show", "--id", "abc", "--format", "md")
	require.NoError(t, err)
	assert.Equal(t, "md", c.HistoryShow.Format)
	assert.Equal(t, "abc", c.HistoryShow.ID)
}

func TestHistoryListLimitDefault(t *testing.T) {
	_, c, err := parseOnly(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, 20, c.HistoryList.Limit)
}

func TestBookmarkAddRepeatableTags(t *testing.T) {
	_, c, err := parseOnly(t, "bookmark", "add", "--url", "https://x.com", "--title", "T", "--tag", "a", "--tag", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.BookmarkAdd.Tags)
}

func TestPruneFlags(t *testing.T) {
	_, c, err := parseOnly(t, "prune", "--dry-run", "--older-than", "7d")
	require.NoError(t, err)
	assert.True(t, c.Prune.DryRun)
	assert.Equal(t, "7d", c.Prune.OlderThan)
}

func TestPurgeForceFlag(t *testing.T) {
	_, c, err := parseOnly(t, "purge", "--all", "--force")
	require.NoError(t, err)
	assert.True(t, c.Purge.All)
	assert.True(t, c.Purge.Force)
}

func TestStatusMetricsFlag(t *testing.T) {
	_, c, err := parseOnly(t, "status", "--metrics")
	require.NoError(t, err)
	assert.True(t, c.Status.Metrics)
}

func TestHistoryAddRequiresURL(t *testing.T) {
	err := RunWithArgs("test", []string{"history", "add", "--title", "Test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url is required")
}

func TestHistoryShowRequiresID(t *testing.T) {
	err := RunWithArgs("test", []string{"history", "show"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id is required")
}

func TestBookmarkAddRequiresTitle(t *testing.T) {
	err := RunWithArgs("test", []string{"bookmark", "add", "--url", "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--title is required")
}

func TestPolicySetUsage(t *testing.T) {
	err := RunWithArgs("test", []string{"policy", "set", "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: policy set")
}

func TestRunWithArgs_EndToEnd(t *testing.T) {
	globals := tempArgs(t)
	run := func(args ...string) string {
		t.Helper()
		return captureOutput(t, func() {
			require.NoError(t, RunWithArgs("test", append(append([]string{}, globals...), args...)))
		})
	}

	out := run("history", "add", "--url", "https://go.dev/doc/effective_go", "--title", "Effective Go")
	assert.Contains(t, out, "Added visit")

	out = run("search", "effective")
	assert.Contains(t, out, "Found 1 result")
	assert.Contains(t, out, "https://go.dev/doc/effective_go")

	out = run("policy", "set", "https://go.dev/play", "clipboard", "allow")
	assert.Equal(t, "https://go.dev clipboard: allow\n", out)

	out = run("--json", "status")
	assert.Contains(t, out, `"history_records": 1`)
	assert.Contains(t, out, `"policy_origins": 1`)
}
