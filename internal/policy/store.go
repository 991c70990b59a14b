package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/storage"
)

// Table stores settings keyed by canonical origin.
var Table = storage.NewTable[Setting]("policy", storage.KindPolicy,
	func(s Setting) []byte { return []byte(s.Origin) })

// Policies is implemented by the persistent Store and by the in-memory
// Overlay used for private windows.
type Policies interface {
	GetOrDefault(ctx context.Context, origin string) (Setting, error)
	Put(ctx context.Context, s Setting) error
	Set(ctx context.Context, origin string, kind PermissionKind, d Decision) error
	Delete(ctx context.Context, origin string) (bool, error)
	Resolve(kind PermissionKind, uri string) (Decision, error)
}

var (
	_ Policies = (*Store)(nil)
	_ Policies = (*Overlay)(nil)
)

// Store persists settings in the record store.
type Store struct {
	store   *storage.Store
	canon   Canonicalizer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithCanonicalizer replaces the default URL-based origin mapping.
func WithCanonicalizer(c Canonicalizer) Option {
	return func(s *Store) { s.canon = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New returns a policy store over store.
func New(store *storage.Store, opts ...Option) *Store {
	s := &Store{
		store: store,
		canon: URLCanonicalizer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

func (s *Store) origin(uri string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", coreerr.New(coreerr.ErrInvalidInput, "canonicalize origin", errors.New("blank uri"))
	}
	origin, err := s.canon.SecurityOrigin(uri)
	if err != nil {
		if coreerr.KindOf(err) == nil {
			err = coreerr.New(coreerr.ErrInvalidInput, "canonicalize origin", err)
		}
		return "", err
	}
	if origin == "" {
		return "", coreerr.New(coreerr.ErrInvalidInput, "canonicalize origin", errors.New("empty origin for "+uri))
	}
	return origin, nil
}

func (s *Store) read(r storage.Reader, origin string) (Setting, error) {
	setting, found, err := Table.Get(r, []byte(origin))
	if err != nil {
		return Setting{}, err
	}
	if !found {
		return Setting{Origin: origin}, nil
	}
	return setting, nil
}

// GetOrDefault returns the setting for the origin of uri, or an all-Ask
// setting when none was stored.
func (s *Store) GetOrDefault(ctx context.Context, uri string) (Setting, error) {
	origin, err := s.origin(uri)
	if err != nil {
		return Setting{}, err
	}
	var out Setting
	err = s.store.View(ctx, func(txn *storage.ReadTxn) error {
		out, err = s.read(txn, origin)
		return err
	})
	return out, err
}

// Put stores a whole setting. Its Origin is canonicalized first.
func (s *Store) Put(ctx context.Context, setting Setting) error {
	origin, err := s.origin(setting.Origin)
	if err != nil {
		return err
	}
	setting.Origin = origin
	return s.store.Update(ctx, func(txn *storage.WriteTxn) error {
		_, _, err := Table.Upsert(txn, setting)
		return err
	})
}

// Set changes a single decision, creating the setting if needed.
func (s *Store) Set(ctx context.Context, uri string, kind PermissionKind, d Decision) error {
	if !kind.valid() {
		return coreerr.New(coreerr.ErrInvalidInput, "set policy", errors.New("unknown permission kind "+kind.String()))
	}
	origin, err := s.origin(uri)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, func(txn *storage.WriteTxn) error {
		setting, err := s.read(txn, origin)
		if err != nil {
			return err
		}
		setting.Set(kind, d)
		_, _, err = Table.Upsert(txn, setting)
		return err
	})
	if err == nil {
		s.logger.Debug("policy updated", "origin", origin, "kind", kind.String(), "decision", d.String())
	}
	return err
}

// Delete removes the stored setting, reverting the origin to all-Ask.
func (s *Store) Delete(ctx context.Context, uri string) (bool, error) {
	origin, err := s.origin(uri)
	if err != nil {
		return false, err
	}
	var existed bool
	err = s.store.Update(ctx, func(txn *storage.WriteTxn) error {
		existed, err = Table.Delete(txn, []byte(origin))
		return err
	})
	return existed, err
}

// List returns every stored setting in origin order.
func (s *Store) List(ctx context.Context) ([]Setting, error) {
	var out []Setting
	err := s.store.View(ctx, func(txn *storage.ReadTxn) error {
		var err error
		out, err = Table.All(txn)
		return err
	})
	return out, err
}

// Resolve returns the decision for a permission request from uri. It never
// blocks on writers and takes no context. A blank uri is rejected with
// ErrInvalidInput before any lookup.
func (s *Store) Resolve(kind PermissionKind, uri string) (Decision, error) {
	origin, err := s.origin(uri)
	if err != nil {
		return Ask, err
	}
	d, err := s.lookup(kind, origin)
	if err != nil {
		return Ask, err
	}
	s.metrics.PolicyResolutions.WithLabelValues(kind.String(), d.String()).Inc()
	return d, nil
}

func (s *Store) lookup(kind PermissionKind, origin string) (Decision, error) {
	if !kind.valid() {
		return Ask, coreerr.New(coreerr.ErrInvalidInput, "resolve policy", errors.New("unknown permission kind "+kind.String()))
	}
	txn := s.store.BeginRead()
	defer txn.Discard()
	setting, err := s.read(txn, origin)
	if err != nil {
		return Ask, err
	}
	return setting.Get(kind), nil
}

// Overlay is a private-window view of a Store. Reads fall through to the
// store for origins the overlay has not touched; writes stay in memory and
// vanish with the overlay.
type Overlay struct {
	base *Store

	mu       sync.RWMutex
	settings map[string]Setting
}

// Ephemeral returns a new empty overlay over s.
func (s *Store) Ephemeral() *Overlay {
	return &Overlay{base: s, settings: make(map[string]Setting)}
}

func (o *Overlay) local(origin string) (Setting, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	setting, ok := o.settings[origin]
	return setting, ok
}

func (o *Overlay) GetOrDefault(ctx context.Context, uri string) (Setting, error) {
	origin, err := o.base.origin(uri)
	if err != nil {
		return Setting{}, err
	}
	return o.settingFor(ctx, origin)
}

// settingFor reads an already canonical origin from the overlay, then
// from the store.
func (o *Overlay) settingFor(ctx context.Context, origin string) (Setting, error) {
	if setting, ok := o.local(origin); ok {
		return setting, nil
	}
	var out Setting
	err := o.base.store.View(ctx, func(txn *storage.ReadTxn) error {
		var err error
		out, err = o.base.read(txn, origin)
		return err
	})
	return out, err
}

func (o *Overlay) put(setting Setting) {
	o.mu.Lock()
	o.settings[setting.Origin] = setting
	o.mu.Unlock()
}

func (o *Overlay) Put(ctx context.Context, setting Setting) error {
	if err := coreerr.FromContext(ctx, "put policy"); err != nil {
		return err
	}
	origin, err := o.base.origin(setting.Origin)
	if err != nil {
		return err
	}
	setting.Origin = origin
	o.put(setting)
	return nil
}

func (o *Overlay) Set(ctx context.Context, uri string, kind PermissionKind, d Decision) error {
	if !kind.valid() {
		return coreerr.New(coreerr.ErrInvalidInput, "set policy", errors.New("unknown permission kind "+kind.String()))
	}
	origin, err := o.base.origin(uri)
	if err != nil {
		return err
	}
	setting, err := o.settingFor(ctx, origin)
	if err != nil {
		return err
	}
	setting.Set(kind, d)
	o.put(setting)
	return nil
}

// Delete masks the origin with an all-Ask setting for the overlay's
// lifetime. The stored setting is untouched.
func (o *Overlay) Delete(ctx context.Context, uri string) (bool, error) {
	origin, err := o.base.origin(uri)
	if err != nil {
		return false, err
	}
	prev, err := o.settingFor(ctx, origin)
	if err != nil {
		return false, err
	}
	o.put(Setting{Origin: origin})
	return !prev.IsDefault(), nil
}

func (o *Overlay) Resolve(kind PermissionKind, uri string) (Decision, error) {
	origin, err := o.base.origin(uri)
	if err != nil {
		return Ask, err
	}
	var d Decision
	if setting, ok := o.local(origin); ok && kind.valid() {
		d = setting.Get(kind)
	} else if d, err = o.base.lookup(kind, origin); err != nil {
		return Ask, err
	}
	o.base.metrics.PolicyResolutions.WithLabelValues(kind.String(), d.String()).Inc()
	return d, nil
}
