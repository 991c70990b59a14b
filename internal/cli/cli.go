package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status         *StatusCommand
	Search         *SearchCommand
	Suggest        *SuggestCommand
	HistoryAdd     *HistoryAddCommand
	HistoryList    *HistoryListCommand
	HistoryShow    *HistoryShowCommand
	HistoryDelete  *HistoryDeleteCommand
	Prune          *PruneCommand
	BookmarkAdd    *BookmarkAddCommand
	BookmarkList   *BookmarkListCommand
	BookmarkDelete *BookmarkDeleteCommand
	PolicyGet      *PolicyGetCommand
	PolicySet      *PolicySetCommand
	PolicyDelete   *PolicyDeleteCommand
	PolicyList     *PolicyListCommand
	SessionsList   *SessionsListCommand
	SessionsShow   *SessionsShowCommand
	Reindex        *ReindexCommand
	Purge          *PurgeCommand
	MCP            *MCPCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "trailmark"
	parser.LongDescription = "Local browsing knowledge: history, bookmarks, permissions and session trails."

	g, v := &globals, version
	cmds := &commands{
		Status:         &StatusCommand{globals: g, version: v},
		Search:         &SearchCommand{globals: g, version: v},
		Suggest:        &SuggestCommand{globals: g, version: v},
		HistoryAdd:     &HistoryAddCommand{globals: g, version: v},
		HistoryList:    &HistoryListCommand{globals: g, version: v},
		HistoryShow:    &HistoryShowCommand{globals: g, version: v},
		HistoryDelete:  &HistoryDeleteCommand{globals: g, version: v},
		Prune:          &PruneCommand{globals: g, version: v},
		BookmarkAdd:    &BookmarkAddCommand{globals: g, version: v},
		BookmarkList:   &BookmarkListCommand{globals: g, version: v},
		BookmarkDelete: &BookmarkDeleteCommand{globals: g, version: v},
		PolicyGet:      &PolicyGetCommand{globals: g, version: v},
		PolicySet:      &PolicySetCommand{globals: g, version: v},
		PolicyDelete:   &PolicyDeleteCommand{globals: g, version: v},
		PolicyList:     &PolicyListCommand{globals: g, version: v},
		SessionsList:   &SessionsListCommand{globals: g, version: v},
		SessionsShow:   &SessionsShowCommand{globals: g, version: v},
		Reindex:        &ReindexCommand{globals: g, version: v},
		Purge:          &PurgeCommand{globals: g, version: v},
		MCP:            &MCPCommand{globals: g, version: v},
	}

	parser.AddCommand("status", "Show store statistics", "Show record counts, index health, sessions and a configuration summary.", cmds.Status)
	parser.AddCommand("search", "Full-text search", "Search history (default) or bookmarks. Words are prefix-matched; \"quoted phrases\" match exactly; -word excludes; field:word restricts a word to one field.", cmds.Search)
	parser.AddCommand("suggest", "Address-bar suggestions", "Print merged suggestions from history, bookmarks and session trails for a partial input.", cmds.Suggest)

	history, _ := parser.AddCommand("history", "Manage visit history", "Add, list, show and delete visits.", &HistoryCommand{})
	history.AddCommand("add", "Record a visit", "Record a visit by hand. Denylisted domains are refused.", cmds.HistoryAdd)
	history.AddCommand("list", "List recent visits", "List visits, newest first.", cmds.HistoryList)
	history.AddCommand("show", "Print one visit", "Print the stored fields of one visit.", cmds.HistoryShow)
	history.AddCommand("delete", "Delete visits", "Delete visits by ID.", cmds.HistoryDelete)

	parser.AddCommand("prune", "Apply retention pruning", "Delete visits older than the retention period.", cmds.Prune)

	bookmark, _ := parser.AddCommand("bookmark", "Manage bookmarks", "Add, list and delete bookmarks.", &BookmarkCommand{})
	bookmark.AddCommand("add", "Save a bookmark", "Save a bookmark. Saving an existing URL replaces it.", cmds.BookmarkAdd)
	bookmark.AddCommand("list", "List bookmarks", "List bookmarks ordered by title.", cmds.BookmarkList)
	bookmark.AddCommand("delete", "Delete bookmarks", "Delete bookmarks by URL.", cmds.BookmarkDelete)

	pol, _ := parser.AddCommand("policy", "Manage permission decisions", "Inspect and change per-origin permission decisions.", &PolicyCommand{})
	pol.AddCommand("get", "Show decisions for a URI", "Show every permission decision for the origin of a URI.", cmds.PolicyGet)
	pol.AddCommand("set", "Store a decision", "Store a decision: policy set <uri> <kind> <ask|allow|deny>.", cmds.PolicySet)
	pol.AddCommand("delete", "Reset an origin", "Forget every decision for the origin of a URI.", cmds.PolicyDelete)
	pol.AddCommand("list", "List origins", "List every origin with stored decisions.", cmds.PolicyList)

	sessions, _ := parser.AddCommand("sessions", "Inspect session trails", "List sessions and print their navigation graphs.", &SessionsCommand{})
	sessions.AddCommand("list", "List sessions", "List saved sessions, oldest first.", cmds.SessionsList)
	sessions.AddCommand("show", "Show a session graph", "Print the nodes and edges of one session.", cmds.SessionsShow)

	parser.AddCommand("reindex", "Rebuild text indices", "Rebuild the history and bookmark indices from the record store.", cmds.Reindex)
	parser.AddCommand("purge", "Delete ALL trailmark data", "Delete ALL trailmark data. Destructive operation with safety prompt.", cmds.Purge)
	parser.AddCommand("mcp", "Serve MCP tools over stdio", "Serve read-only search, suggestion and permission tools to an MCP client over stdin/stdout.", cmds.MCP)

	return parser, &globals, cmds
}

// Run is the main entry point for the trailmark CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("trailmark %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
