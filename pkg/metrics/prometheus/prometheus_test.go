package prometheus

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inftyai/mantafs/pkg/metrics"
)

func TestConstructorsDisabled(t *testing.T) {
	metrics.ResetForTesting()

	assert.Nil(t, metrics.NewResolverMetrics())
	assert.Nil(t, metrics.NewCatalogMetrics())
	assert.Nil(t, metrics.NewFSMetrics())
	assert.Nil(t, metrics.NewPeerMetrics())

	// nil-safe helpers
	metrics.ObserveResolve(nil, metrics.TierLocal, time.Millisecond, nil)
	metrics.RecordCoalesced(nil)
}

func TestResolverMetrics(t *testing.T) {
	metrics.ResetForTesting()
	t.Cleanup(metrics.ResetForTesting)
	metrics.InitRegistry()

	m := metrics.NewResolverMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, metrics.NewResolverMetrics(), "constructor must be idempotent per registry")

	m.ObserveResolve(metrics.TierOrigin, 20*time.Millisecond, nil)
	m.ObserveResolve(metrics.TierOrigin, time.Millisecond, errors.New("boom"))
	m.RecordFetchBytes(metrics.TierOrigin, 1024)
	m.RecordCoalesced()
	m.SetInflight(3)

	rm := m.(*resolverMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.resolves.WithLabelValues("origin", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.resolves.WithLabelValues("origin", "error")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(rm.fetchBytes.WithLabelValues("origin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.coalesced))
	assert.Equal(t, 3.0, testutil.ToFloat64(rm.inflight))
}

func TestHandlerExposesMetrics(t *testing.T) {
	metrics.ResetForTesting()
	t.Cleanup(metrics.ResetForTesting)
	metrics.InitRegistry()

	metrics.NewCatalogMetrics().ObserveOperation("badger", "Lookup", time.Millisecond, nil)
	metrics.NewFSMetrics().RecordRequest("READ", time.Millisecond, "")
	metrics.NewPeerMetrics().ObserveServe("hit", 10, time.Millisecond)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"mantafs_catalog_operations_total",
		"mantafs_fs_requests_total",
		"mantafs_peer_served_total",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
