// Package session records each browser window's navigations as a directed
// acyclic graph, persists one snapshot file per session, and serves live
// prefix suggestions over every loaded graph.
package session

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// NodeID indexes a node in its graph's arena. IDs are stable across saves.
type NodeID int

// NodeState records what has been observed about a node. The zero value is
// Pending: the URI was added but never finished loading.
type NodeState uint8

const (
	Pending NodeState = 0
	Titled  NodeState = 1 << 0
	// Redirected means the final URI differs from the original one.
	Redirected NodeState = 1 << 1
)

// Has reports whether every bit of flag is set.
func (s NodeState) Has(flag NodeState) bool { return s&flag == flag }

func (s NodeState) String() string {
	if s == Pending {
		return "pending"
	}
	var parts []string
	if s.Has(Titled) {
		parts = append(parts, "titled")
	}
	if s.Has(Redirected) {
		parts = append(parts, "redirected")
	}
	return strings.Join(parts, "|")
}

// Node is one visited page.
type Node struct {
	ID          NodeID
	URI         string
	OriginalURI string
	Title       string
	FirstSeenAt time.Time
	State       NodeState
}

// Edge is an observed navigation from one node to another.
type Edge struct {
	From NodeID
	To   NodeID
}

// Graph is an arena of nodes plus a coalesced, acyclic edge set. It is not
// safe for concurrent use; Session serializes access.
type Graph struct {
	nodes      []Node
	out        [][]NodeID
	edges      map[Edge]struct{}
	byOriginal map[string]NodeID
	byURI      map[string]NodeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		edges:      make(map[Edge]struct{}),
		byOriginal: make(map[string]NodeID),
		byURI:      make(map[string]NodeID),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Nodes returns a copy of every node in id order.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.nodes)
}

// Edges returns every edge ordered by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	return out
}

// Successors returns the direct targets of id.
func (g *Graph) Successors(id NodeID) []NodeID {
	if id < 0 || int(id) >= len(g.out) {
		return nil
	}
	return slices.Clone(g.out[id])
}

// Lookup finds a node by original URI, falling back to its final URI.
func (g *Graph) Lookup(uri string) (NodeID, bool) {
	if id, ok := g.byOriginal[uri]; ok {
		return id, true
	}
	id, ok := g.byURI[uri]
	return id, ok
}

func (g *Graph) findOrInsert(uri string, at time.Time) NodeID {
	if id, ok := g.Lookup(uri); ok {
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, Node{
		ID:          id,
		URI:         uri,
		OriginalURI: uri,
		FirstSeenAt: at,
	})
	g.out = append(g.out, nil)
	g.byOriginal[uri] = id
	g.byURI[uri] = id
	return id
}

// RecordNavigation notes a navigation from one URI to another at time at.
// Equal URIs are a no-op. An empty from records only the destination. The
// edge is skipped when it already exists or would close a cycle. It returns
// the ids of the nodes involved.
func (g *Graph) RecordNavigation(from, to string, at time.Time) []NodeID {
	if to == "" || from == to {
		return nil
	}
	if from == "" {
		return []NodeID{g.findOrInsert(to, at)}
	}
	src := g.findOrInsert(from, at)
	dst := g.findOrInsert(to, at)
	g.addEdge(src, dst)
	return []NodeID{src, dst}
}

func (g *Graph) addEdge(from, to NodeID) bool {
	e := Edge{From: from, To: to}
	if from == to {
		return false
	}
	if _, ok := g.edges[e]; ok {
		return false
	}
	if g.reaches(to, from) {
		return false
	}
	g.edges[e] = struct{}{}
	g.out[from] = append(g.out[from], to)
	return true
}

// reaches reports whether target is reachable from start.
func (g *Graph) reaches(start, target NodeID) bool {
	seen := make([]bool, len(g.nodes))
	stack := []NodeID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.out[n]...)
	}
	return false
}

// UpdateNode applies a redirect and/or a title to the node whose original
// URI is originalURI. Nil arguments leave the field unchanged. The node keeps
// originalURI as its lookup key.
func (g *Graph) UpdateNode(originalURI string, newURI, newTitle *string) (NodeID, bool) {
	id, ok := g.byOriginal[originalURI]
	if !ok {
		return 0, false
	}
	n := &g.nodes[id]
	if newURI != nil && *newURI != "" && *newURI != n.URI {
		if g.byURI[n.URI] == id {
			delete(g.byURI, n.URI)
		}
		n.URI = *newURI
		if _, taken := g.byURI[n.URI]; !taken {
			g.byURI[n.URI] = id
		}
	}
	if n.URI != n.OriginalURI {
		n.State |= Redirected
	}
	if newTitle != nil {
		n.Title = *newTitle
		n.State |= Titled
	}
	return id, true
}

// restore rebuilds the lookup tables from a decoded snapshot, dropping
// edges that are out of range, self-loops, duplicates, or cycle-closing.
func restore(nodes []Node, edges []Edge) *Graph {
	g := NewGraph()
	for i, n := range nodes {
		n.ID = NodeID(i)
		g.nodes = append(g.nodes, n)
		g.out = append(g.out, nil)
		if _, dup := g.byOriginal[n.OriginalURI]; !dup {
			g.byOriginal[n.OriginalURI] = n.ID
		}
		if _, dup := g.byURI[n.URI]; !dup {
			g.byURI[n.URI] = n.ID
		}
	}
	for _, e := range edges {
		if e.From < 0 || e.To < 0 || int(e.From) >= len(nodes) || int(e.To) >= len(nodes) {
			continue
		}
		g.addEdge(e.From, e.To)
	}
	return g
}
