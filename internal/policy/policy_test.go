package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/trailmark/internal/coreerr"
	"github.com/runnerr0/trailmark/internal/metrics"
	"github.com/runnerr0/trailmark/internal/storage"
)

func openTestPolicies(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, opts...)
}

func TestSecurityOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://site.test", "https://site.test"},
		{"https://site.test/path?q=1#frag", "https://site.test"},
		{"HTTPS://Site.TEST:443/", "https://site.test"},
		{"http://site.test:80", "http://site.test"},
		{"http://site.test:8080/x", "http://site.test:8080"},
		{"https://user:pw@site.test/", "https://site.test"},
		{"https://bücher.example/", "https://xn--bcher-kva.example"},
		{"http://[::1]:3000/", "http://[::1]:3000"},
		{"http://127.0.0.1/", "http://127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SecurityOrigin(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecurityOrigin_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "site.test", "about:blank", "%zz"} {
		_, err := SecurityOrigin(in)
		assert.True(t, errors.Is(err, coreerr.ErrInvalidInput), "%q: %v", in, err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("camera")
	assert.Error(t, err)
	assert.Len(t, Kinds(), 8)
}

func TestParseDecision(t *testing.T) {
	for _, d := range []Decision{Ask, Allow, Deny} {
		got, err := ParseDecision(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDecision("maybe")
	assert.Error(t, err)
}

func TestResolve_DefaultThenOverride(t *testing.T) {
	p := openTestPolicies(t)
	ctx := context.Background()

	d, err := p.Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Ask, d)

	origin, err := SecurityOrigin("https://site.test")
	require.NoError(t, err)
	setting := Setting{Origin: origin}
	setting.Set(Clipboard, Allow)
	require.NoError(t, p.Put(ctx, setting))

	d, err = p.Resolve(Clipboard, "https://site.test/some/page")
	require.NoError(t, err)
	assert.Equal(t, Allow, d)

	d, err = p.Resolve(Geolocation, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Ask, d, "other kinds untouched")

	_, err = p.Resolve(Clipboard, "")
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
}

func TestResolve_UnwrittenOriginsAreAsk(t *testing.T) {
	p := openTestPolicies(t)
	for _, uri := range []string{"https://a.test", "http://b.test:8080", "https://c.test/x"} {
		for _, k := range Kinds() {
			d, err := p.Resolve(k, uri)
			require.NoError(t, err)
			assert.Equal(t, Ask, d, "%s %s", uri, k)
		}
	}
}

func TestResolve_CustomCanonicalizer(t *testing.T) {
	var seen []string
	p := openTestPolicies(t, WithCanonicalizer(CanonicalizerFunc(func(uri string) (string, error) {
		seen = append(seen, uri)
		if uri == "bad" {
			return "", errors.New("no origin")
		}
		return "app://fixed", nil
	})))
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "anything", Clipboard, Deny))
	d, err := p.Resolve(Clipboard, "something else")
	require.NoError(t, err)
	assert.Equal(t, Deny, d)

	_, err = p.Resolve(Clipboard, "bad")
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput), "plain canonicalizer errors are classified")

	_, err = p.Resolve(Clipboard, " ")
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
	assert.Equal(t, []string{"anything", "something else", "bad"}, seen, "blank uri never reaches the canonicalizer")
}

func TestSetAndGetOrDefault(t *testing.T) {
	p := openTestPolicies(t)
	ctx := context.Background()

	got, err := p.GetOrDefault(ctx, "https://maps.test/route")
	require.NoError(t, err)
	assert.Equal(t, "https://maps.test", got.Origin)
	assert.True(t, got.IsDefault())

	require.NoError(t, p.Set(ctx, "https://maps.test/route", Geolocation, Allow))
	require.NoError(t, p.Set(ctx, "https://maps.test", Notification, Deny))

	got, err = p.GetOrDefault(ctx, "https://maps.test")
	require.NoError(t, err)
	assert.Equal(t, Allow, got.Get(Geolocation))
	assert.Equal(t, Deny, got.Get(Notification))
	assert.Equal(t, Ask, got.Get(Clipboard))

	all, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://maps.test", all[0].Origin)
}

func TestDelete(t *testing.T) {
	p := openTestPolicies(t)
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "https://a.test", UserMedia, Deny))

	existed, err := p.Delete(ctx, "https://a.test/")
	require.NoError(t, err)
	assert.True(t, existed)

	d, err := p.Resolve(UserMedia, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, Ask, d)

	existed, err = p.Delete(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSet_UnknownKind(t *testing.T) {
	p := openTestPolicies(t)
	err := p.Set(context.Background(), "https://a.test", PermissionKind(42), Allow)
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))

	_, err = p.Resolve(PermissionKind(42), "https://a.test")
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
}

func TestOverlay(t *testing.T) {
	p := openTestPolicies(t)
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "https://site.test", Clipboard, Allow))

	o := p.Ephemeral()

	d, err := o.Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Allow, d, "reads fall through")

	require.NoError(t, o.Set(ctx, "https://site.test", Clipboard, Deny))
	require.NoError(t, o.Set(ctx, "https://other.test", Geolocation, Allow))

	d, err = o.Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Deny, d)

	d, err = p.Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Allow, d, "store untouched")

	d, err = p.Resolve(Geolocation, "https://other.test")
	require.NoError(t, err)
	assert.Equal(t, Ask, d)

	existed, err := o.Delete(ctx, "https://site.test")
	require.NoError(t, err)
	assert.True(t, existed)
	d, err = o.Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Ask, d)

	d, err = p.Ephemeral().Resolve(Clipboard, "https://site.test")
	require.NoError(t, err)
	assert.Equal(t, Allow, d, "new overlay starts empty")

	_, err = o.Resolve(Clipboard, "")
	assert.True(t, errors.Is(err, coreerr.ErrInvalidInput))
}

func TestResolve_Metrics(t *testing.T) {
	m := metrics.New(nil)
	p := openTestPolicies(t, WithMetrics(m))
	ctx := context.Background()

	_, err := p.Resolve(Notification, "https://a.test")
	require.NoError(t, err)
	require.NoError(t, p.Set(ctx, "https://a.test", Notification, Deny))
	_, err = p.Resolve(Notification, "https://a.test")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyResolutions.WithLabelValues("notification", "ask")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyResolutions.WithLabelValues("notification", "deny")))
}

func TestOverlay_CanonicalizesOnce(t *testing.T) {
	// Rejects its own output, so a second pass over an origin fails.
	canon := CanonicalizerFunc(func(uri string) (string, error) {
		host, ok := strings.CutPrefix(uri, "page:")
		if !ok {
			return "", errors.New("not a page uri")
		}
		return "origin:" + host, nil
	})
	p := openTestPolicies(t, WithCanonicalizer(canon))
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "page:site", Clipboard, Allow))

	o := p.Ephemeral()
	got, err := o.GetOrDefault(ctx, "page:site")
	require.NoError(t, err)
	assert.Equal(t, "origin:site", got.Origin)
	assert.Equal(t, Allow, got.Get(Clipboard), "falls through to the store")

	require.NoError(t, o.Set(ctx, "page:site", Geolocation, Deny))
	got, err = o.GetOrDefault(ctx, "page:site")
	require.NoError(t, err)
	assert.Equal(t, Allow, got.Get(Clipboard))
	assert.Equal(t, Deny, got.Get(Geolocation))

	existed, err := o.Delete(ctx, "page:site")
	require.NoError(t, err)
	assert.True(t, existed)
	d, err := o.Resolve(Clipboard, "page:site")
	require.NoError(t, err)
	assert.Equal(t, Ask, d)
}
