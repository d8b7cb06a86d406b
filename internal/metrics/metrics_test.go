package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("create")
		m.Write("session", nil)
		m.SetTabs(1, 1)
		m.LoadFailed()
	})
}

func TestCollectors(t *testing.T) {
	m := New()
	m.Transition("wake")
	m.Transition("wake")
	m.Write("session", nil)
	m.Write("session", errors.New("disk full"))
	m.SetTabs(3, 1)
	m.LoadFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("wake")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionWrites.WithLabelValues("session", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionWrites.WithLabelValues("session", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Tabs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveSurfaces))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadErrors))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tabhost_lifecycle_transitions_total")
}
