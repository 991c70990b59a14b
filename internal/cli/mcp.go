package cli

import (
	"context"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/mcptools"
)

// Execute implements the go-flags Commander interface for MCPCommand. It
// blocks until the client closes stdin.
func (c *MCPCommand) Execute(args []string) error {
	return withHandle(c.globals, func(_ context.Context, h *core.Handle) error {
		h.Logger().Info("serving MCP tools on stdio", "version", c.version)
		return mcptools.ServeStdio(mcptools.NewServer(h, c.version))
	})
}
