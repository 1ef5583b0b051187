package gateway

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"spacehub/api-gateway/internal/apierror"
	"spacehub/api-gateway/internal/auth"
	"spacehub/api-gateway/internal/ratelimit"
	"spacehub/api-gateway/internal/util"
)

// requestInfo creates the RequestContext, echoes the request ID and writes
// the access log line and request metrics once the response is done.
func (s *Server) requestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{
			RequestID: uuid.NewString(),
			ClientIP:  s.trusted.ClientIP(r),
			Start:     time.Now(),
		}
		w.Header().Set("X-Request-ID", rc.RequestID)
		rec := util.NewStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(withRequestContext(r.Context(), rc)))

		elapsed := time.Since(rc.Start)
		s.metrics.ObserveRequest(rc.ServiceName, r.Method, rec.Status, elapsed)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", rc.RequestID,
			"client_ip", rc.ClientIP,
		}
		if rc.ServiceName != "" {
			attrs = append(attrs, "service", rc.ServiceName)
		}
		if rc.Identity != nil {
			attrs = append(attrs, "user_id", rc.Identity.UserID, "tenant_id", rc.Identity.TenantID)
		}
		s.logger.Info("request completed", attrs...)
	})
}

// recoverer turns a panic into INTERNAL_ERROR. It sits inside requestInfo so
// the access log still records the 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			attrs := []any{"panic", v, "method", r.Method, "path", r.URL.Path, "stack", string(debug.Stack())}
			if rc, ok := FromContext(r.Context()); ok && rc.Identity != nil {
				attrs = append(attrs, "user_id", rc.Identity.UserID, "tenant_id", rc.Identity.TenantID)
			}
			s.logger.Error("panic recovered", attrs...)

			apiErr := apierror.Internal()
			if !s.production {
				apiErr = apiErr.With("error", fmt.Sprint(v))
			}
			apierror.Write(w, apiErr)
		}()
		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision, now time.Time) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", strconv.Itoa(d.RetryAfterSeconds(now)))
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, scope, message string, d ratelimit.Decision) {
	now := s.limiter.Now()
	retry := d.RetryAfterSeconds(now)
	setRateLimitHeaders(w, d, now)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.metrics.RateLimited(scope)
	rc, _ := FromContext(r.Context())
	s.rejectLog.Do(func() {
		s.logger.Warn("rate limit exceeded", "scope", scope, "client_ip", rc.ClientIP, "path", r.URL.Path, "retry_after", retry)
	})
	apierror.Write(w, apierror.RateLimitExceeded(message, retry))
}

// globalLimit caps total traffic per client across every service.
func (s *Server) globalLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		d := s.limiter.AllowGlobal(rc.ClientIP)
		if !d.Allowed {
			s.rejectRateLimited(w, r, "global", "Too many requests, please try again later", d)
			return
		}
		setRateLimitHeaders(w, d, s.limiter.Now())
		next.ServeHTTP(w, r)
	})
}

// route resolves the upstream and rejects while its breaker is open.
func (s *Server) route(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.reg.Match(r.URL.Path)
		if !ok {
			apierror.Write(w, apierror.ServiceNotFound(r.URL.Path))
			return
		}
		rc, _ := FromContext(r.Context())
		rc.ServiceName = svc.Name
		rc.Service = svc

		if b, ok := s.bank.Get(svc.Name); ok && !b.Allow() {
			retry := int(math.Ceil(b.RetryAfter().Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			apierror.Write(w, apierror.ServiceUnavailable(svc.Name).With("retryAfter", retry))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tierLimit applies the resolved service's priority tier, then the service's
// own limit when it declares one.
func (s *Server) tierLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		tier := rc.Service.Priority
		if d, ok := s.limiter.AllowTier(tier, rc.ClientIP); ok {
			if !d.Allowed {
				s.rejectRateLimited(w, r, string(tier), fmt.Sprintf("Rate limit exceeded for %s priority services", tier), d)
				return
			}
			rc.TierLimit = d.Limit
			setRateLimitHeaders(w, d, s.limiter.Now())
		}
		if d, ok := s.limiter.AllowService(rc.ServiceName, rc.ClientIP); ok {
			if !d.Allowed {
				s.rejectRateLimited(w, r, "service:"+rc.ServiceName, fmt.Sprintf("Rate limit exceeded for service %s", rc.ServiceName), d)
				return
			}
			setRateLimitHeaders(w, d, s.limiter.Now())
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate verifies the caller unless the route is public.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		if auth.IsPublicRoute(s.prefix, rc.ServiceName, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		id, apiErr := s.auth.Authenticate(r.Context(), r)
		if apiErr != nil {
			s.logger.Debug("authentication failed", "code", apiErr.Code, "service", rc.ServiceName, "request_id", rc.RequestID)
			apierror.Write(w, apiErr)
			return
		}
		rc.Identity = id
		next.ServeHTTP(w, r)
	})
}
