package session

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultPrefixLimit caps PrefixQuery results when no limit is given.
const DefaultPrefixLimit = 5

// Suggestion is one prefix index hit.
type Suggestion struct {
	SessionID   string
	NodeID      NodeID
	URI         string
	OriginalURI string
	Title       string
	FirstSeenAt time.Time
}

type entryKey struct {
	session string
	node    NodeID
}

type entry struct {
	Suggestion
	terms []string
}

// PrefixIndex is an in-memory index over the nodes of every loaded session
// graph. It matches as the user types, from the first character.
type PrefixIndex struct {
	mu      sync.RWMutex
	entries map[entryKey]entry
}

// NewPrefixIndex returns an empty index.
func NewPrefixIndex() *PrefixIndex {
	return &PrefixIndex{entries: make(map[entryKey]entry)}
}

// Put inserts or replaces the entry for one node.
func (p *PrefixIndex) Put(sessionID string, n Node) {
	e := entry{
		Suggestion: Suggestion{
			SessionID:   sessionID,
			NodeID:      n.ID,
			URI:         n.URI,
			OriginalURI: n.OriginalURI,
			Title:       n.Title,
			FirstSeenAt: n.FirstSeenAt,
		},
		terms: matchTerms(n),
	}
	p.mu.Lock()
	p.entries[entryKey{session: sessionID, node: n.ID}] = e
	p.mu.Unlock()
}

// RemoveSession drops every entry of a session.
func (p *PrefixIndex) RemoveSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.entries {
		if k.session == sessionID {
			delete(p.entries, k)
		}
	}
}

// Len returns the number of indexed nodes.
func (p *PrefixIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Query returns up to limit nodes with a URI, original URI or title word
// starting with prefix, case-insensitively. Results are de-duplicated by
// URI and then by original URI, keeping the most recently first-seen node
// each time, and are ordered newest first.
func (p *PrefixIndex) Query(prefix string, limit int) []Suggestion {
	q := strings.ToLower(strings.TrimSpace(prefix))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultPrefixLimit
	}

	p.mu.RLock()
	var hits []Suggestion
	for _, e := range p.entries {
		if matches(e.terms, q) {
			hits = append(hits, e.Suggestion)
		}
	}
	p.mu.RUnlock()

	slices.SortFunc(hits, func(a, b Suggestion) int {
		if c := b.FirstSeenAt.Compare(a.FirstSeenAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SessionID, b.SessionID); c != 0 {
			return c
		}
		return cmp.Compare(a.NodeID, b.NodeID)
	})
	hits = dedupe(hits, func(s Suggestion) string { return s.URI })
	hits = dedupe(hits, func(s Suggestion) string { return s.OriginalURI })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// dedupe keeps the first hit per key. Input is newest first.
func dedupe(hits []Suggestion, key func(Suggestion) string) []Suggestion {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, h := range hits {
		k := key(h)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, h)
	}
	return out
}

func matches(terms []string, q string) bool {
	for _, t := range terms {
		if strings.HasPrefix(t, q) {
			return true
		}
	}
	return false
}

func matchTerms(n Node) []string {
	var terms []string
	for _, u := range []string{n.URI, n.OriginalURI} {
		u = strings.ToLower(u)
		terms = append(terms, u)
		if _, rest, ok := strings.Cut(u, "://"); ok {
			terms = append(terms, rest)
			if bare, ok := strings.CutPrefix(rest, "www."); ok {
				terms = append(terms, bare)
			}
		}
	}
	title := strings.ToLower(n.Title)
	if title != "" {
		terms = append(terms, title)
		terms = append(terms, strings.Fields(title)...)
	}
	return slices.Compact(terms)
}
