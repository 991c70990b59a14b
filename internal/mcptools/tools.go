// Package mcptools exposes read-only views of the knowledge core as MCP
// tools, so an assistant can search history and bookmarks, ask for
// address-bar suggestions and check permission decisions.
package mcptools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/policy"
)

// ServerName identifies the server in the MCP handshake.
const ServerName = "trailmark-mcp"

// NewServer builds an MCP server with every read-only tool registered.
func NewServer(h *core.Handle, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))
	RegisterReadTools(s, h)
	return s
}

// ServeStdio serves s over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// RegisterReadTools adds the search, suggestion and permission tools.
func RegisterReadTools(s *server.MCPServer, h *core.Handle) {
	s.AddTool(searchHistoryTool(), searchHistoryHandler(h))
	s.AddTool(searchBookmarksTool(), searchBookmarksHandler(h))
	s.AddTool(suggestTool(), suggestHandler(h))
	s.AddTool(resolvePermissionTool(), resolvePermissionHandler(h))
}

// --- search_history ---

func searchHistoryTool() mcp.Tool {
	return mcp.NewTool("search_history",
		mcp.WithDescription("Full-text search over visited pages. Matches titles and URLs; words are prefix-matched, \"quoted phrases\" match exactly, -word excludes."),
		mcp.WithString("query",
			mcp.Description("Search query"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 10)"),
		),
	)
}

func searchHistoryHandler(h *core.Handle) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		if query == "" {
			return toolError(fmt.Errorf("query is required"))
		}

		recs, err := h.History().Search(ctx, query, req.GetInt("limit", 0))
		if err != nil {
			return toolError(err)
		}
		if len(recs) == 0 {
			return mcp.NewToolResultText("No results found."), nil
		}

		var sb strings.Builder
		for _, r := range recs {
			fmt.Fprintf(&sb, "%s  %s  %s\n", r.Timestamp.Format(time.RFC3339), r.URI, r.Title)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- search_bookmarks ---

func searchBookmarksTool() mcp.Tool {
	return mcp.NewTool("search_bookmarks",
		mcp.WithDescription("Full-text search over bookmarks. Use title:, body: or tag: to restrict a word to one field."),
		mcp.WithString("query",
			mcp.Description("Search query"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 10)"),
		),
	)
}

func searchBookmarksHandler(h *core.Handle) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		if query == "" {
			return toolError(fmt.Errorf("query is required"))
		}

		bms, err := h.Bookmarks().Search(ctx, query, req.GetInt("limit", 0))
		if err != nil {
			return toolError(err)
		}
		if len(bms) == 0 {
			return mcp.NewToolResultText("No results found."), nil
		}

		var sb strings.Builder
		for _, b := range bms {
			fmt.Fprintf(&sb, "%s  %s", b.URL, b.Title)
			if len(b.Tags) > 0 {
				fmt.Fprintf(&sb, "  [%s]", strings.Join(b.Tags, ", "))
			}
			sb.WriteByte('\n')
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- suggest ---

func suggestTool() mcp.Tool {
	return mcp.NewTool("suggest",
		mcp.WithDescription("Address-bar suggestions for a partial input, merged from history, bookmarks and recent sessions."),
		mcp.WithString("query",
			mcp.Description("What the user has typed so far"),
			mcp.Required(),
		),
	)
}

func suggestHandler(h *core.Handle) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		if query == "" {
			return toolError(fmt.Errorf("query is required"))
		}

		items, err := h.Suggest(ctx, query)
		if err != nil {
			return toolError(err)
		}
		if len(items) == 0 {
			return mcp.NewToolResultText("No suggestions."), nil
		}

		var sb strings.Builder
		for _, it := range items {
			fmt.Fprintf(&sb, "%s  %s\n", it.URI, it.Title)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- resolve_permission ---

func resolvePermissionTool() mcp.Tool {
	kinds := make([]string, 0, len(policy.Kinds()))
	for _, k := range policy.Kinds() {
		kinds = append(kinds, k.String())
	}
	return mcp.NewTool("resolve_permission",
		mcp.WithDescription("Report the stored decision (ask, allow or deny) for a permission request from a page."),
		mcp.WithString("kind",
			mcp.Description("Permission kind"),
			mcp.Required(),
			mcp.Enum(kinds...),
		),
		mcp.WithString("uri",
			mcp.Description("URI of the requesting page"),
			mcp.Required(),
		),
	)
}

func resolvePermissionHandler(h *core.Handle) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := policy.ParseKind(req.GetString("kind", ""))
		if err != nil {
			return toolError(err)
		}
		uri := req.GetString("uri", "")
		if uri == "" {
			return toolError(fmt.Errorf("uri is required"))
		}

		setting, err := h.Policies().GetOrDefault(ctx, uri)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s %s: %s", setting.Origin, kind, setting.Get(kind))), nil
	}
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
