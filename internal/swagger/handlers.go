// Package swagger builds the gateway's OpenAPI document and serves it with
// Swagger UI.
package swagger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"spacehub/api-gateway/internal/registry"
)

// Docs is a validated OpenAPI document ready to serve.
type Docs struct {
	doc *openapi3.T
	raw []byte
}

var (
	current      atomic.Pointer[Docs]
	registerOnce sync.Once
)

// provider hands swag whichever document was built last.
type provider struct{}

func (provider) ReadDoc() string {
	if d := current.Load(); d != nil {
		return d.ReadDoc()
	}
	return "{}"
}

// New builds and validates the document for the given route table and makes
// it the one served under /swagger/.
func New(ctx context.Context, version string, routes []registry.RouteEntry) (*Docs, error) {
	doc := Document(version, routes)
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	d := &Docs{doc: doc, raw: raw}
	current.Store(d)
	registerOnce.Do(func() { swag.Register(swag.Name, provider{}) })
	return d, nil
}

func (d *Docs) ReadDoc() string { return string(d.raw) }

// Spec serves the raw document.
func (d *Docs) Spec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(d.raw)
}

// Handlers returns the mux patterns for the document and the UI.
func (d *Docs) Handlers() map[string]http.Handler {
	return map[string]http.Handler{
		"GET /swagger.json": http.HandlerFunc(d.Spec),
		"GET /swagger/":     httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")),
	}
}

func envelopeSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema().WithEnum(
			"MISSING_TOKEN", "INVALID_TOKEN", "TOKEN_REVOKED", "TENANT_ACCESS_DENIED",
			"RATE_LIMIT_EXCEEDED", "SERVICE_NOT_FOUND", "SERVICE_UNAVAILABLE",
			"SERVICE_ERROR", "INTERNAL_ERROR", "ROUTE_NOT_FOUND", "FORBIDDEN",
		))
}

func jsonResponse(desc string, schema *openapi3.Schema) *openapi3.Response {
	return openapi3.NewResponse().WithDescription(desc).WithJSONSchema(schema)
}

func operation(summary, tag string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Summary = summary
	op.Tags = []string{tag}
	return op
}

// globPath turns a route glob into an OpenAPI path template. Globs with an
// inner wildcard have no template form.
func globPath(pattern string) (string, bool) {
	i := strings.IndexByte(pattern, '*')
	switch {
	case i < 0:
		return pattern, true
	case i == len(pattern)-1:
		return strings.TrimSuffix(pattern[:i], "/") + "/{path}", true
	default:
		return "", false
	}
}

// Document describes the gateway's own endpoints plus one proxy entry per
// route glob.
func Document(version string, routes []registry.RouteEntry) *openapi3.T {
	paths := openapi3.NewPaths()

	health := operation("Aggregate gateway health", "system")
	health.AddResponse(http.StatusOK, jsonResponse("healthy or degraded", openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum("healthy", "degraded", "unhealthy")).
		WithProperty("score", openapi3.NewIntegerSchema()).
		WithProperty("timestamp", openapi3.NewDateTimeSchema()).
		WithProperty("version", openapi3.NewStringSchema()).
		WithProperty("uptime", openapi3.NewFloat64Schema()).
		WithProperty("services", openapi3.NewObjectSchema())))
	health.AddResponse(http.StatusServiceUnavailable, openapi3.NewResponse().WithDescription("unhealthy"))
	paths.Set("/health", &openapi3.PathItem{Get: health})

	m := operation("Process and per-service metrics snapshot", "system")
	m.AddResponse(http.StatusOK, jsonResponse("metrics", openapi3.NewObjectSchema()))
	paths.Set("/metrics", &openapi3.PathItem{Get: m})

	prom := operation("Prometheus exposition", "system")
	prom.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("text exposition format"))
	paths.Set("/metrics/prometheus", &openapi3.PathItem{Get: prom})

	for _, p := range []string{"/healthz", "/readyz"} {
		op := operation(strings.TrimPrefix(p, "/")+" probe", "system")
		op.AddResponse(http.StatusOK, jsonResponse("OK", openapi3.NewObjectSchema().WithProperty("status", openapi3.NewStringSchema())))
		paths.Set(p, &openapi3.PathItem{Get: op})
	}

	denied := jsonResponse("missing, invalid or non-admin token", envelopeSchema())
	listSvc := operation("List services with health and breaker state", "admin")
	listSvc.AddResponse(http.StatusOK, jsonResponse("services", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())))
	listSvc.AddResponse(http.StatusForbidden, denied)
	paths.Set("/admin/services", &openapi3.PathItem{Get: listSvc})

	nameParam := openapi3.NewPathParameter("name").WithSchema(openapi3.NewStringSchema())
	getSvc := operation("Get one service", "admin")
	getSvc.AddParameter(nameParam)
	getSvc.AddResponse(http.StatusOK, jsonResponse("service", openapi3.NewObjectSchema()))
	getSvc.AddResponse(http.StatusNotFound, jsonResponse("unknown service", envelopeSchema()))
	paths.Set("/admin/services/{name}", &openapi3.PathItem{Get: getSvc})

	reset := operation("Reset a circuit breaker to CLOSED", "admin")
	reset.AddParameter(nameParam)
	reset.AddResponse(http.StatusOK, jsonResponse("breaker reset", openapi3.NewObjectSchema()))
	reset.AddResponse(http.StatusNotFound, jsonResponse("unknown service", envelopeSchema()))
	paths.Set("/admin/services/{name}/reset", &openapi3.PathItem{Post: reset})

	adminRoutes := operation("List the compiled route table", "admin")
	adminRoutes.AddResponse(http.StatusOK, jsonResponse("routes", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema().
		WithProperty("pattern", openapi3.NewStringSchema()).
		WithProperty("service", openapi3.NewStringSchema()).
		WithProperty("priority", openapi3.NewStringSchema()))))
	paths.Set("/admin/routes", &openapi3.PathItem{Get: adminRoutes})

	for _, rt := range routes {
		tmpl, ok := globPath(rt.Pattern)
		if !ok || paths.Value(tmpl) != nil {
			continue
		}
		op := operation(fmt.Sprintf("Proxied to %s (%s priority)", rt.Service, rt.Priority), "proxy")
		if strings.Contains(tmpl, "{path}") {
			op.AddParameter(openapi3.NewPathParameter("path").WithSchema(openapi3.NewStringSchema()))
		}
		op.AddResponse(0, openapi3.NewResponse().WithDescription("upstream response, relayed unchanged"))
		op.AddResponse(http.StatusTooManyRequests, jsonResponse("rate limited", envelopeSchema()))
		op.AddResponse(http.StatusBadGateway, jsonResponse("upstream failure", envelopeSchema()))
		op.AddResponse(http.StatusServiceUnavailable, jsonResponse("circuit open", envelopeSchema()))
		paths.Set(tmpl, &openapi3.PathItem{Get: op, Post: op, Put: op, Patch: op, Delete: op})
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "SpaceHub API Gateway",
			Version:     version,
			Description: "Edge gateway routing /api traffic to backend services. Proxied and admin routes expect an HS256 bearer token in the Authorization header.",
		},
		Servers: openapi3.Servers{&openapi3.Server{URL: "/"}},
		Tags: openapi3.Tags{
			&openapi3.Tag{Name: "system", Description: "Health, readiness and metrics"},
			&openapi3.Tag{Name: "admin", Description: "Registry inspection and breaker reset (role=admin)"},
			&openapi3.Tag{Name: "proxy", Description: "Routes forwarded to backend services"},
		},
		Paths: paths,
	}
}
