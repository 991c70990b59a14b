package session

import (
	"cmp"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	// Dir holds one {id}.session file per session.
	Dir string

	// CurrentID reuses an existing session as the current one. Empty
	// starts a fresh session with a new UUID.
	CurrentID string

	// SaveInterval is the minimum spacing between snapshot writes of one
	// session once SaveBurst is spent. Zero saves after every mutation.
	SaveInterval time.Duration
	SaveBurst    int

	// PrefixLimit caps PrefixQuery results when the caller passes no limit.
	PrefixLimit int

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Now stamps first_seen_at. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SaveBurst <= 0 {
		o.SaveBurst = 1
	}
	if o.PrefixLimit <= 0 {
		o.PrefixLimit = DefaultPrefixLimit
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Info summarizes a session.
type Info struct {
	ID        string
	CreatedAt time.Time
	Nodes     int
	Edges     int
	Current   bool
}

// Manager owns every loaded session and the shared prefix index.
type Manager struct {
	opts   Options
	logger *slog.Logger
	prefix *PrefixIndex

	mu       sync.RWMutex
	sessions map[string]*Session
	current  *Session
	closed   bool

	pending sync.WaitGroup
}

// Open loads every session file in opts.Dir and starts the current session.
// Files that cannot be decoded are skipped with a warning. Files holding an
// empty graph are deleted unless they belong to the current session.
func Open(opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if opts.Dir == "" {
		return nil, coreerr.New(coreerr.ErrInvalidInput, "open sessions", errors.New("empty session directory"))
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, coreerr.New(coreerr.ErrIO, "open sessions", err)
	}

	m := &Manager{
		opts:     opts,
		logger:   opts.Logger,
		prefix:   NewPrefixIndex(),
		sessions: make(map[string]*Session),
	}

	currentID := opts.CurrentID
	if currentID == "" {
		currentID = uuid.NewString()
	}

	ids, err := listSessionFiles(opts.Dir)
	if err != nil {
		return nil, err
	}
	m.removeTempFiles()

	for _, id := range ids {
		path := sessionPath(opts.Dir, id)
		snap, err := readSnapshot(path)
		if err != nil {
			m.logger.Warn("skipping unreadable session file", "path", path, "error", err)
			continue
		}
		if len(snap.Nodes) == 0 && id != currentID {
			if err := os.Remove(path); err != nil {
				m.logger.Warn("failed to remove empty session", "path", path, "error", err)
			} else {
				m.logger.Debug("removed empty session", "id", id)
			}
			continue
		}
		s := m.add(id, snap.CreatedAt, restore(snap.Nodes, snap.Edges))
		for _, n := range s.graph.Nodes() {
			m.prefix.Put(id, n)
		}
	}

	if s, ok := m.sessions[currentID]; ok {
		m.current = s
	} else {
		m.current = m.add(currentID, opts.Now().UTC(), NewGraph())
	}
	m.logger.Info("sessions loaded", "sessions", len(m.sessions), "current", currentID, "indexed_nodes", m.prefix.Len())
	return m, nil
}

func (m *Manager) removeTempFiles() {
	matches, _ := filepath.Glob(filepath.Join(m.opts.Dir, ".tmp-*"+FileExt))
	for _, path := range matches {
		os.Remove(path)
	}
}

func (m *Manager) add(id string, createdAt time.Time, g *Graph) *Session {
	limit := rate.Inf
	if m.opts.SaveInterval > 0 {
		limit = rate.Every(m.opts.SaveInterval)
	}
	s := &Session{
		id:        id,
		createdAt: createdAt,
		m:         m,
		graph:     g,
		limiter:   rate.NewLimiter(limit, m.opts.SaveBurst),
	}
	m.sessions[id] = s
	return s
}

// Current returns the session started by Open.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// NewSession starts another session, for example for a new window.
func (m *Manager) NewSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(uuid.NewString(), m.opts.Now().UTC(), NewGraph())
}

// Get returns a loaded session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List summarizes every loaded session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	current := m.current
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		info.Current = s == current
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// PrefixQuery searches the nodes of every loaded session. A limit <= 0
// uses the configured prefix limit.
func (m *Manager) PrefixQuery(prefix string, limit int) []Suggestion {
	if limit <= 0 {
		limit = m.opts.PrefixLimit
	}
	return m.prefix.Query(prefix, limit)
}

// Close flushes every session with unsaved changes.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	m.pending.Wait()
	return errors.Join(errs...)
}

// Session is one window's navigation graph.
type Session struct {
	id        string
	createdAt time.Time
	m         *Manager

	mu      sync.Mutex
	graph   *Graph
	dirty   bool
	closed  bool
	timer   *time.Timer
	limiter *rate.Limiter

	saveMu sync.Mutex
}

// ID returns the session UUID.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Info summarizes the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Nodes:     s.graph.Len(),
		Edges:     s.graph.EdgeCount(),
	}
}

// Snapshot returns copies of the nodes and edges.
func (s *Session) Snapshot() ([]Node, []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Nodes(), s.graph.Edges()
}

// RecordNavigation adds a navigation from one URI to another, re-indexes
// both endpoints, and schedules a save. Equal URIs are ignored.
func (s *Session) RecordNavigation(from, to string) {
	s.mu.Lock()
	ids := s.graph.RecordNavigation(from, to, s.m.opts.Now().UTC())
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		n, _ := s.graph.Node(id)
		nodes = append(nodes, n)
	}
	s.mu.Unlock()

	if len(nodes) == 0 {
		return
	}
	for _, n := range nodes {
		s.m.prefix.Put(s.id, n)
	}
	s.changed()
}

// UpdateNode applies a redirect target and/or title to the node first
// reached via originalURI. It reports whether the node exists.
func (s *Session) UpdateNode(originalURI string, newURI, newTitle *string) bool {
	s.mu.Lock()
	id, ok := s.graph.UpdateNode(originalURI, newURI, newTitle)
	var n Node
	if ok {
		n, _ = s.graph.Node(id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.m.prefix.Put(s.id, n)
	s.changed()
	return true
}

// changed saves now if the limiter allows it and otherwise defers a single
// save to when the next token is available.
func (s *Session) changed() {
	s.mu.Lock()
	s.dirty = true
	if s.closed || s.timer != nil {
		s.mu.Unlock()
		return
	}
	if s.limiter.Allow() {
		s.mu.Unlock()
		if err := s.Save(); err != nil {
			s.m.logger.Warn("session save failed", "id", s.id, "error", err)
		}
		return
	}
	delay := s.limiter.Reserve().Delay()
	s.m.pending.Add(1)
	s.timer = time.AfterFunc(delay, s.deferredSave)
	s.mu.Unlock()
	s.m.opts.Metrics.SessionSaves.WithLabelValues("deferred").Inc()
}

func (s *Session) deferredSave() {
	defer s.m.pending.Done()
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()
	if err := s.Save(); err != nil {
		s.m.logger.Warn("deferred session save failed", "id", s.id, "error", err)
	}
}

// flush cancels any deferred save and writes pending changes.
func (s *Session) flush() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil && s.timer.Stop() {
		s.timer = nil
		s.m.pending.Done()
	}
	dirty := s.dirty
	s.mu.Unlock()
	if !dirty {
		return nil
	}
	return s.Save()
}

// Save writes the whole graph to {id}.session atomically.
func (s *Session) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Nodes:     s.graph.Nodes(),
		Edges:     s.graph.Edges(),
	}
	s.dirty = false
	s.mu.Unlock()

	data, err := encodeSnapshot(snap)
	if err == nil {
		err = writeFileAtomic(sessionPath(s.m.opts.Dir, s.id), data)
	}
	s.m.opts.Metrics.SessionSaves.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// Purge deletes every session file and empties every graph. The current
// session stays open with an empty graph.
func (m *Manager) Purge() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		if s != m.current {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		s.saveMu.Lock()
		s.mu.Lock()
		if s.timer != nil && s.timer.Stop() {
			s.timer = nil
			m.pending.Done()
		}
		s.graph = NewGraph()
		s.dirty = false
		s.mu.Unlock()

		m.prefix.RemoveSession(s.id)
		if err := os.Remove(sessionPath(m.opts.Dir, s.id)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, coreerr.New(coreerr.ErrIO, "purge session", err))
		}
		s.saveMu.Unlock()
	}
	m.logger.Info("sessions purged", "sessions", len(sessions))
	return errors.Join(errs...)
}
