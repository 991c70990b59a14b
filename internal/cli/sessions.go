package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/trailmark/internal/core"
	"github.com/runnerr0/trailmark/internal/session"
)

type sessionInfoJSON struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	Current   bool   `json:"current"`
}

// Execute implements the go-flags Commander interface for SessionsListCommand.
func (c *SessionsListCommand) Execute(args []string) error {
	return withHandle(c.globals, c.executeWith)
}

func (c *SessionsListCommand) executeWith(ctx context.Context, h *core.Handle) error {
	infos := h.Sessions().List()

	if c.globals.JSON {
		out := make([]sessionInfoJSON, len(infos))
		for i, info := range infos {
			out[i] = sessionInfoJSON{
				ID:        info.ID,
				CreatedAt: info.CreatedAt.UTC().Format(time.RFC3339),
				Nodes:     info.Nodes,
				Edges:     info.Edges,
				Current:   info.Current,
			}
		}
		return printJSON(out)
	}

	for _, info := range infos {
		marker := " "
		if info.Current {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %d %s, %d %s\n", marker, info.ID,
			info.CreatedAt.Local().Format("2006-01-02 15:04"),
			info.Nodes, plural(info.Nodes, "page"), info.Edges, plural(info.Edges, "link"))
	}
	return nil
}

type nodeJSON struct {
	ID          int    `json:"id"`
	URI         string `json:"uri"`
	OriginalURI string `json:"original_uri,omitempty"`
	Title       string `json:"title,omitempty"`
	FirstSeenAt string `json:"first_seen_at"`
	State       string `json:"state"`
}

type graphJSON struct {
	ID    string     `json:"id"`
	Nodes []nodeJSON `json:"nodes"`
	Edges [][2]int   `json:"edges"`
}

// Execute implements the go-flags Commander interface for SessionsShowCommand.
func (c *SessionsShowCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for sessions show")
	}
	return withHandle(c.globals, c.executeWith)
}

func (c *SessionsShowCommand) executeWith(ctx context.Context, h *core.Handle) error {
	s, ok := h.Sessions().Get(c.ID)
	if !ok {
		return fmt.Errorf("session not found: %s", c.ID)
	}
	nodes, edges := s.Snapshot()

	if c.globals.JSON {
		out := graphJSON{ID: s.ID(), Nodes: make([]nodeJSON, len(nodes)), Edges: make([][2]int, len(edges))}
		for i, n := range nodes {
			out.Nodes[i] = nodeJSON{
				ID:          int(n.ID),
				URI:         n.URI,
				OriginalURI: n.OriginalURI,
				Title:       n.Title,
				FirstSeenAt: n.FirstSeenAt.UTC().Format(time.RFC3339Nano),
				State:       n.State.String(),
			}
		}
		for i, e := range edges {
			out.Edges[i] = [2]int{int(e.From), int(e.To)}
		}
		return printJSON(out)
	}

	byID := make(map[session.NodeID]session.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	fmt.Printf("Session %s (%d %s)\n\n", s.ID(), len(nodes), plural(len(nodes), "page"))
	for _, n := range nodes {
		fmt.Printf("[%d] %s", n.ID, n.URI)
		if n.Title != "" {
			fmt.Printf("  %q", n.Title)
		}
		fmt.Printf("  (%s)\n", n.State)
	}
	if len(edges) > 0 {
		fmt.Println()
		fmt.Println("Links:")
		for _, e := range edges {
			fmt.Printf("  [%d] -> [%d]  %s -> %s\n", e.From, e.To, byID[e.From].URI, byID[e.To].URI)
		}
	}
	return nil
}
