package gateway

import (
	"context"
	"time"

	"spacehub/api-gateway/internal/auth"
	"spacehub/api-gateway/internal/registry"
)

// RequestContext is the per-request state built up by the pipeline. It lives
// exactly as long as the request.
type RequestContext struct {
	RequestID   string
	ClientIP    string
	Start       time.Time
	ServiceName string
	Service     *registry.Service
	Identity    *auth.Identity
	TierLimit   int
}

type ctxKey struct{}

func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the request's RequestContext, if the gateway set one.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return rc, ok
}
