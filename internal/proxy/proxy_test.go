package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/registry"
)

func newForwarder(bank *breaker.Bank, production bool) *Forwarder {
	return New(bank, Options{
		Prefix:     "/api",
		Version:    "9.9.9",
		Production: production,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func svc(name, baseURL string, timeout time.Duration) *registry.Service {
	s := &registry.Service{Name: name, BaseURL: baseURL, Routes: []string{"/api/" + name + "/*"}, Timeout: timeout}
	s.ApplyDefaults()
	return s
}

func TestStripPrefix(t *testing.T) {
	f := newForwarder(breaker.NewBank(), false)
	assert.Equal(t, "/bookings/1", f.StripPrefix("/api/bookings/1"))
	assert.Equal(t, "/", f.StripPrefix("/api"))
	assert.Equal(t, "/apiary/x", f.StripPrefix("/apiary/x"))
}

func TestForward_HeadersAndRelay(t *testing.T) {
	var got *http.Request
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"b1"}`)
	}))
	defer up.Close()

	bank := breaker.NewBank()
	s := svc("bookings", up.URL, time.Second)
	s.Priority = registry.PriorityHigh
	bank.Register(s.Name, 3, time.Minute)

	r := httptest.NewRequest(http.MethodPost, "/api/bookings/rooms?x=1", nil)
	r.Header.Set("X-User-ID", "spoofed")
	rec := httptest.NewRecorder()
	newForwarder(bank, false).Forward(rec, r, Target{
		Service: s, RequestID: "req-1", UserID: "u1", TenantID: "t1", Role: "admin", TierLimit: 300,
	})

	require.NotNil(t, got)
	assert.Equal(t, "/bookings/rooms", got.URL.Path)
	assert.Equal(t, "x=1", got.URL.RawQuery)
	assert.Equal(t, "req-1", got.Header.Get(HeaderRequestID))
	assert.Equal(t, "u1", got.Header.Get(HeaderUserID))
	assert.Equal(t, "t1", got.Header.Get(HeaderTenantID))
	assert.Equal(t, "admin", got.Header.Get(HeaderUserRole))
	assert.Equal(t, "bookings", got.Header.Get(HeaderServiceName))
	assert.Equal(t, "9.9.9", got.Header.Get(HeaderGatewayVersion))
	assert.Equal(t, "high", got.Header.Get(HeaderRateLimitTier))
	assert.Equal(t, "300", got.Header.Get(HeaderRateLimitLimit))
	assert.NotEmpty(t, got.Header.Get("X-Forwarded-For"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"id":"b1"}`, rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "bookings", rec.Header().Get(HeaderServiceName))
	assert.Equal(t, "9.9.9", rec.Header().Get(HeaderGatewayVersion))
	assert.Regexp(t, `^\d+ms$`, rec.Header().Get(HeaderResponseTime))
}

func TestForward_KeepsEscapedSegments(t *testing.T) {
	var escaped string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escaped = r.URL.EscapedPath()
	}))
	defer up.Close()

	rec := httptest.NewRecorder()
	newForwarder(breaker.NewBank(), false).Forward(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login/a%2Fb", nil),
		Target{Service: svc("auth", up.URL, time.Second)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/auth/login/a%2Fb", escaped)
}

func TestForward_AnonymousDefaults(t *testing.T) {
	var got http.Header
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer up.Close()

	rec := httptest.NewRecorder()
	newForwarder(breaker.NewBank(), false).Forward(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil),
		Target{Service: svc("auth", up.URL, time.Second)})

	assert.Equal(t, "anonymous", got.Get(HeaderUserID))
	assert.Equal(t, "default", got.Get(HeaderTenantID))
	assert.NotEmpty(t, got.Get(HeaderRequestID))
	assert.Empty(t, got.Get(HeaderUserRole))
}

func TestForward_UpstreamErrorStatusIsRelayed(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer up.Close()

	bank := breaker.NewBank()
	b := bank.Register("crm", 1, time.Minute)
	rec := httptest.NewRecorder()
	newForwarder(bank, false).Forward(rec, httptest.NewRequest(http.MethodGet, "/api/crm/x", nil),
		Target{Service: svc("crm", up.URL, time.Second)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, breaker.Closed, b.State())
}

func TestForward_TimeoutRecordsFailure(t *testing.T) {
	release := make(chan struct{})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer up.Close()
	defer close(release)

	bank := breaker.NewBank()
	b := bank.Register("payments", 3, time.Minute)
	f := newForwarder(bank, false)
	s := svc("payments", up.URL, 30*time.Millisecond)

	rec := httptest.NewRecorder()
	f.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/payments/1", nil), Target{Service: s})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_ERROR", body["code"])
	assert.Equal(t, "payments", body["service"])
	assert.Contains(t, body["error"], "timed out")
	assert.Equal(t, 1, b.Snapshot().Failures)
}

func TestForward_TimeoutWhileStreamingRecordsFailure(t *testing.T) {
	release := make(chan struct{})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer up.Close()
	defer close(release)

	bank := breaker.NewBank()
	b := bank.Register("reports", 1, time.Minute)
	rec := httptest.NewRecorder()
	newForwarder(bank, false).Forward(rec, httptest.NewRequest(http.MethodGet, "/api/reports/big", nil),
		Target{Service: svc("reports", up.URL, 100*time.Millisecond)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
	assert.Equal(t, breaker.Open, b.State())
	assert.Equal(t, 1, b.Snapshot().Failures)
}

func TestForward_ConnectionRefusedHidesDetailInProduction(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	addr := up.URL
	up.Close()

	bank := breaker.NewBank()
	b := bank.Register("crm", 1, time.Minute)
	rec := httptest.NewRecorder()
	newForwarder(bank, true).Forward(rec, httptest.NewRequest(http.MethodGet, "/api/crm/x", nil),
		Target{Service: svc("crm", addr, time.Second)})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "error")
	assert.Equal(t, breaker.Open, b.State())
}
