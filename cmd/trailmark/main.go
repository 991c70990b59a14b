// Command trailmark inspects and maintains the local browsing knowledge
// store: history, bookmarks, permission decisions and session trails.
//
// Usage:
//
//	trailmark status
//	trailmark search "go blog"
//	trailmark policy set https://meet.example.com user_media allow
//	trailmark mcp
package main

import (
	"os"

	"github.com/runnerr0/trailmark/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
