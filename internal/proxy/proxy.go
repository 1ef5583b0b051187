// Package proxy forwards a routed request to its upstream and feeds transport
// failures back into the service's circuit breaker.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacehub/api-gateway/internal/apierror"
	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/registry"
)

// Outbound and response header names.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderUserID         = "X-User-ID"
	HeaderTenantID       = "X-Tenant-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderServiceName    = "X-Service-Name"
	HeaderGatewayVersion = "X-Gateway-Version"
	HeaderResponseTime   = "X-Response-Time"
	HeaderRateLimitTier  = "X-RateLimit-Tier"
	HeaderRateLimitLimit = "X-RateLimit-Limit"
)

// Target is everything the forwarder needs to know about one routed request.
type Target struct {
	Service   *registry.Service
	RequestID string
	UserID    string
	TenantID  string
	Role      string
	TierLimit int
	Start     time.Time
}

type Options struct {
	Prefix     string
	Version    string
	Production bool
	Transport  http.RoundTripper
	Logger     *slog.Logger
}

// Forwarder proxies requests to upstream services.
type Forwarder struct {
	bank       *breaker.Bank
	prefix     string
	version    string
	production bool
	transport  http.RoundTripper
	logger     *slog.Logger
}

func New(bank *breaker.Bank, opts Options) *Forwarder {
	f := &Forwarder{
		bank:       bank,
		prefix:     strings.TrimSuffix(opts.Prefix, "/"),
		version:    opts.Version,
		production: opts.Production,
		transport:  opts.Transport,
		logger:     opts.Logger,
	}
	if f.transport == nil {
		f.transport = http.DefaultTransport
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "proxy")
	return f
}

// StripPrefix removes the gateway prefix from path, keeping a leading slash.
func (f *Forwarder) StripPrefix(path string) string {
	if f.prefix == "" {
		return path
	}
	rest, ok := strings.CutPrefix(path, f.prefix)
	if !ok || (rest != "" && rest[0] != '/') {
		return path
	}
	if rest == "" {
		return "/"
	}
	return rest
}

// Forward relays r to t.Service within the service timeout. Upstream
// status and body are relayed unchanged; transport failures and timeouts
// are recorded on the breaker and answered with SERVICE_ERROR.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, t Target) {
	svc := t.Service
	target, err := url.Parse(svc.BaseURL)
	if err != nil {
		f.logger.Error("bad upstream url", "service", svc.Name, "base_url", svc.BaseURL, "error", err)
		apierror.Write(w, apierror.ServiceError(svc.Name))
		return
	}
	if t.RequestID == "" {
		t.RequestID = uuid.NewString()
	}
	if t.Start.IsZero() {
		t.Start = time.Now()
	}

	ctx, cancel := context.WithTimeout(r.Context(), svc.Timeout)
	defer cancel()

	rp := &httputil.ReverseProxy{
		Transport: f.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = f.StripPrefix(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = f.StripPrefix(pr.In.URL.RawPath)
			}
			pr.SetURL(target)
			pr.SetXForwarded()
			f.setOutbound(pr.Out.Header, t)
		},
		ModifyResponse: func(resp *http.Response) error {
			h := resp.Header
			h.Set(HeaderRequestID, t.RequestID)
			h.Set(HeaderServiceName, svc.Name)
			h.Set(HeaderGatewayVersion, f.version)
			h.Set(HeaderResponseTime, strconv.FormatInt(time.Since(t.Start).Milliseconds(), 10)+"ms")
			resp.Body = &deadlineBody{ReadCloser: resp.Body, ctx: ctx, onDeadline: func(err error) {
				f.recordFailure(svc, r, fmt.Errorf("upstream timed out after %s while streaming body: %w", svc.Timeout, err))
			}}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			w.Header().Set(HeaderRequestID, t.RequestID)
			f.fail(w, r, svc, err)
		},
	}
	// the upstream response carries the request ID; avoid a duplicate value
	w.Header().Del(HeaderRequestID)
	rp.ServeHTTP(w, r.WithContext(ctx))
}

func (f *Forwarder) setOutbound(h http.Header, t Target) {
	userID, tenantID := t.UserID, t.TenantID
	if userID == "" {
		userID = "anonymous"
	}
	if tenantID == "" {
		tenantID = "default"
	}
	h.Set(HeaderRequestID, t.RequestID)
	h.Set(HeaderUserID, userID)
	h.Set(HeaderTenantID, tenantID)
	h.Set(HeaderServiceName, t.Service.Name)
	h.Set(HeaderGatewayVersion, f.version)
	h.Set(HeaderRateLimitTier, string(t.Service.Priority))
	if t.Role != "" {
		h.Set(HeaderUserRole, t.Role)
	} else {
		h.Del(HeaderUserRole)
	}
	if t.TierLimit > 0 {
		h.Set(HeaderRateLimitLimit, strconv.Itoa(t.TierLimit))
	}
}

func (f *Forwarder) fail(w http.ResponseWriter, in *http.Request, svc *registry.Service, err error) {
	// client went away; the upstream did nothing wrong
	if errors.Is(err, context.Canceled) && in.Context().Err() != nil {
		f.logger.Debug("client canceled request", "service", svc.Name, "path", in.URL.Path)
		w.WriteHeader(499)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("upstream timed out after %s: %w", svc.Timeout, err)
	}

	f.recordFailure(svc, in, err)

	apiErr := apierror.ServiceError(svc.Name)
	if !f.production {
		apiErr = apiErr.With("error", err.Error())
	}
	apierror.Write(w, apiErr)
}

func (f *Forwarder) recordFailure(svc *registry.Service, in *http.Request, err error) {
	state := breaker.Closed
	if b, ok := f.bank.Get(svc.Name); ok {
		state = b.RecordFailure()
	}
	f.logger.Error("proxy error", "service", svc.Name, "path", in.URL.Path, "error", err, "circuit", state.String())
}

// deadlineBody reports a read failure caused by the service timeout expiring
// after the upstream already sent its headers.
type deadlineBody struct {
	io.ReadCloser
	ctx        context.Context
	onDeadline func(error)
	once       sync.Once
}

func (b *deadlineBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF && errors.Is(b.ctx.Err(), context.DeadlineExceeded) {
		b.once.Do(func() { b.onDeadline(err) })
	}
	return n, err
}
