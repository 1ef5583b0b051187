// Package admin exposes read-only registry inspection and manual circuit
// breaker reset to callers holding an admin token.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"spacehub/api-gateway/internal/apierror"
	"spacehub/api-gateway/internal/auth"
	"spacehub/api-gateway/internal/breaker"
	"spacehub/api-gateway/internal/health"
	"spacehub/api-gateway/internal/registry"
	"spacehub/api-gateway/internal/util"
)

// AdminRole is the token role allowed to use the admin API.
const AdminRole = "admin"

type Handler struct {
	reg    *registry.Registry
	repo   registry.Repository
	bank   *breaker.Bank
	cache  *health.Cache
	auth   *auth.Authenticator
	logger *slog.Logger
}

// NewHandler builds the admin API. repo may be nil; it is only consulted for
// descriptors stored after the registry was loaded.
func NewHandler(reg *registry.Registry, repo registry.Repository, bank *breaker.Bank, cache *health.Cache, authn *auth.Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reg: reg, repo: repo, bank: bank, cache: cache, auth: authn, logger: logger.With("component", "admin")}
}

// Routes returns the admin mux, protected by RequireAdmin.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/services", h.ListServices)
	mux.HandleFunc("GET /admin/services/{name}", h.GetService)
	mux.HandleFunc("POST /admin/services/{name}/reset", h.ResetBreaker)
	mux.HandleFunc("GET /admin/routes", h.ListRoutes)
	mux.HandleFunc("/admin/", func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, apierror.RouteNotFound(r.Method, r.URL.Path))
	})
	return h.RequireAdmin(mux)
}

// RequireAdmin authenticates the bearer token and requires role=admin.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, apiErr := h.auth.Authenticate(r.Context(), r)
		if apiErr != nil {
			apierror.Write(w, apiErr)
			return
		}
		if id.Role != AdminRole {
			h.logger.Warn("admin access denied", "user_id", id.UserID, "role", id.Role, "path", r.URL.Path)
			apierror.Write(w, apierror.Forbidden("Admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) view(svc *registry.Service) ServiceView {
	v := ServiceView{Service: svc, Loaded: true}
	if rec, ok := h.cache.Get(svc.Name); ok {
		v.Health = rec
	}
	if b, ok := h.bank.Get(svc.Name); ok {
		snap := b.Snapshot()
		v.CircuitBreaker = &snap
	}
	return v
}

// ListServices returns every registered service with its live state.
// @Summary List services
// @Tags admin
// @Produce json
// @Success 200 {array} admin.ServiceView
// @Failure 401 {object} map[string]any "missing or revoked token"
// @Failure 403 {object} map[string]any "not an admin"
// @Security BearerAuth
// @Router /admin/services [get]
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	all := h.reg.All()
	out := make([]ServiceView, 0, len(all))
	for _, svc := range all {
		out = append(out, h.view(svc))
	}
	util.JSON(w, out)
}

// GetService returns one service by name. A descriptor that is stored in the
// repository but not loaded into the running registry is reported with
// loaded=false and no live state.
// @Summary Get service
// @Tags admin
// @Produce json
// @Param name path string true "Service name"
// @Success 200 {object} admin.ServiceView
// @Failure 404 {object} map[string]any "unknown service"
// @Security BearerAuth
// @Router /admin/services/{name} [get]
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if svc, ok := h.reg.Get(name); ok {
		util.JSON(w, h.view(svc))
		return
	}
	notFound := apierror.New(http.StatusNotFound, apierror.CodeServiceNotFound, "Service not registered").With("service", name)
	if h.repo == nil {
		apierror.Write(w, notFound)
		return
	}
	svc, err := h.repo.Get(r.Context(), name)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		apierror.Write(w, notFound)
	case err != nil:
		h.logger.Error("repository lookup failed", "service", name, "error", err)
		apierror.Write(w, err)
	default:
		svc.ApplyDefaults()
		util.JSON(w, ServiceView{Service: svc, Health: health.Record{Status: health.StatusUnknown}})
	}
}

// ResetBreaker forces a service's circuit breaker back to CLOSED.
// @Summary Reset circuit breaker
// @Tags admin
// @Produce json
// @Param name path string true "Service name"
// @Success 200 {object} admin.ResetResponse
// @Failure 404 {object} map[string]any "unknown service"
// @Security BearerAuth
// @Router /admin/services/{name}/reset [post]
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	b, ok := h.bank.Get(name)
	if !ok {
		apierror.Write(w, apierror.New(http.StatusNotFound, apierror.CodeServiceNotFound, "Service not registered").With("service", name))
		return
	}
	prev := b.State()
	b.Reset()
	h.logger.Info("circuit breaker reset", "service", name, "previous", prev.String())
	util.JSON(w, ResetResponse{Service: name, Previous: prev, CircuitBreaker: b.Snapshot()})
}

// ListRoutes returns the compiled route table in match order.
// @Summary List routes
// @Tags admin
// @Produce json
// @Success 200 {array} registry.RouteEntry
// @Security BearerAuth
// @Router /admin/routes [get]
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	util.JSON(w, h.reg.Routes())
}
