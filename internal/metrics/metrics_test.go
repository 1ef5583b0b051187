package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"spacehub/api-gateway/internal/breaker"
)

func TestBreakerChanged(t *testing.T) {
	m := New()
	m.InitServices([]string{"payments"})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("payments")))

	m.BreakerChanged("payments", breaker.Closed, breaker.Open)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("payments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("payments", "CLOSED", "OPEN")))

	m.BreakerChanged("payments", breaker.Open, breaker.HalfOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("payments")))
}

func TestObserveRequestAndProbe(t *testing.T) {
	m := New()
	m.ObserveRequest("bookings", http.MethodGet, 200, 20*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, 404, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("bookings", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("gateway", "GET", "404")))

	m.ProbeObserved("crm", false, time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ServiceHealthy.WithLabelValues("crm")))
	m.ProbeObserved("crm", true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServiceHealthy.WithLabelValues("crm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbeResults.WithLabelValues("crm", "failure")))

	m.RateLimited("global")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejected.WithLabelValues("global")))
}

func TestObserveRequest_UnknownMethodsCollapse(t *testing.T) {
	m := New()
	m.ObserveRequest("crm", "PURGE", 405, time.Millisecond)
	m.ObserveRequest("crm", "X-RANDOM-1", 405, time.Millisecond)
	m.ObserveRequest("crm", http.MethodPatch, 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("crm", "OTHER", "405")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("crm", "PATCH", "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Requests))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RateLimited("low")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gateway_rate_limit_rejected_total{scope="low"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
