package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CollectionOps.WithLabelValues("history", "upsert", "ok").Inc()
	m.SuggestSeconds.Observe(0.01)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["trailmark_collection_operations_total"])
	assert.True(t, names["trailmark_suggest_duration_seconds"])
}

func TestNew_NilRegistererStillCounts(t *testing.T) {
	m := New(nil)
	m.SessionSaves.WithLabelValues("ok").Add(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionSaves.WithLabelValues("ok")))
}

func TestNew_TwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}
