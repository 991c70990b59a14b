package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DataDir string `long:"data-dir" description:"Override the data directory from the config"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows store statistics and a configuration summary.
type StatusCommand struct {
	Metrics bool `long:"metrics" description:"Also print the collected metrics in Prometheus text format"`

	globals *GlobalFlags
	version string
}

// SearchCommand runs a full-text query against history or bookmarks.
type SearchCommand struct {
	Bookmarks bool   `long:"bookmarks" description:"Search bookmarks instead of history"`
	Since     string `long:"since" description:"Only visits newer than duration (e.g., 7d, 24h, 2w)"`
	Domain    string `long:"domain" description:"Only visits to this domain"`
	Limit     int    `long:"limit" description:"Maximum results" default:"10"`

	globals *GlobalFlags
	version string
}

// SuggestCommand prints address-bar suggestions for a partial input.
type SuggestCommand struct {
	globals *GlobalFlags
	version string
}

// HistoryCommand groups the history subcommands.
type HistoryCommand struct{}

// HistoryAddCommand records a visit by hand.
type HistoryAddCommand struct {
	URL         string `long:"url" description:"URL to record (required)"`
	Title       string `long:"title" description:"Page title"`
	OriginalURL string `long:"original-url" description:"URL first requested, when the page was redirected"`
	At          string `long:"at" description:"Visit time in RFC 3339 (default now)"`

	globals *GlobalFlags
	version string
}

// HistoryListCommand lists recent visits, newest first.
type HistoryListCommand struct {
	Limit int `long:"limit" description:"Maximum visits to print" default:"20"`

	globals *GlobalFlags
	version string
}

// HistoryShowCommand prints one visit.
type HistoryShowCommand struct {
	ID     string `long:"id" description:"Visit ID (required)"`
	Format string `long:"format" description:"Output format: full | md | url | title" default:"full"`

	globals *GlobalFlags
	version string
}

// HistoryDeleteCommand deletes visits by ID.
type HistoryDeleteCommand struct {
	globals *GlobalFlags
	version string
}

// PruneCommand applies retention pruning to history.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Override retention period (e.g., 30d)"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
	version string
}

// BookmarkCommand groups the bookmark subcommands.
type BookmarkCommand struct{}

// BookmarkAddCommand saves or replaces a bookmark.
type BookmarkAddCommand struct {
	URL      string   `long:"url" description:"URL to bookmark (required)"`
	Title    string   `long:"title" description:"Bookmark title (required)"`
	Body     string   `long:"body" description:"Inline body text"`
	BodyFile string   `long:"body-file" description:"Path to file containing body content"`
	Tags     []string `long:"tag" description:"Tag (repeatable)"`

	globals *GlobalFlags
	version string
}

// BookmarkListCommand lists bookmarks by title.
type BookmarkListCommand struct {
	Tag string `long:"tag" description:"Only bookmarks carrying this tag"`

	globals *GlobalFlags
	version string
}

// BookmarkDeleteCommand deletes bookmarks by URL.
type BookmarkDeleteCommand struct {
	globals *GlobalFlags
	version string
}

// PolicyCommand groups the permission subcommands.
type PolicyCommand struct{}

// PolicyGetCommand prints every decision stored for an origin.
type PolicyGetCommand struct {
	globals *GlobalFlags
	version string
}

// PolicySetCommand stores one decision.
type PolicySetCommand struct {
	globals *GlobalFlags
	version string
}

// PolicyDeleteCommand resets an origin to ask for every kind.
type PolicyDeleteCommand struct {
	globals *GlobalFlags
	version string
}

// PolicyListCommand lists every origin with a stored decision.
type PolicyListCommand struct {
	globals *GlobalFlags
	version string
}

// SessionsCommand groups the session subcommands.
type SessionsCommand struct{}

// SessionsListCommand lists saved sessions.
type SessionsListCommand struct {
	globals *GlobalFlags
	version string
}

// SessionsShowCommand prints the navigation graph of one session.
type SessionsShowCommand struct {
	ID string `long:"id" description:"Session ID (required)"`

	globals *GlobalFlags
	version string
}

// ReindexCommand rebuilds both text indices from the record store.
type ReindexCommand struct {
	globals *GlobalFlags
	version string
}

// PurgeCommand deletes ALL data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
}

// MCPCommand serves the read-only MCP tools over stdio.
type MCPCommand struct {
	globals *GlobalFlags
	version string
}
