package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Transition("allocate", "ok")
	c.Transition("allocate", "ok")
	c.Transition("allocate", "conflict")
	c.Reclaimed("expired", 3)
	c.Reclaimed("expired", 0)
	c.SweepRun("ok")
	c.ObserveHTTP(http.MethodGet, "/v1/beds/occupied", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.TransitionsTotal.WithLabelValues("allocate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TransitionsTotal.WithLabelValues("allocate", "conflict")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.SweeperReclaimed.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SweeperRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RequestsTotal.WithLabelValues("GET", "/v1/beds/occupied", "200")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Transition("cancel", "ok")
		c.Notify("publish", "error")
		c.SweepRun("error")
		c.Reclaimed("deleted", 4)
		c.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
	})
}

func TestHandler_Exposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).SweepRun("skipped")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `medilink_sweeper_runs_total{outcome="skipped"} 1`))
}
