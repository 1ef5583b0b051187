// Package auth verifies bearer tokens and resolves the caller's identity and
// tenant before a request is forwarded.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"spacehub/api-gateway/internal/apierror"
	"spacehub/api-gateway/internal/util"
)

// Claims is the access token payload issued by the auth service.
type Claims struct {
	UserID   string `json:"userId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
	Email    string
}

type Authenticator struct {
	secret []byte
	store  TokenStore
	logger *slog.Logger
}

func NewAuthenticator(secret string, store TokenStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret: []byte(secret),
		store:  store,
		logger: logger.With("component", "authenticator"),
	}
}

// Authenticate runs the bearer checks in order: presence, revocation,
// signature and expiry, tenant validity. Token store errors are logged and
// treated like a cache miss.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, *apierror.Error) {
	tok := util.ReadBearer(r)
	if tok == "" {
		return nil, apierror.MissingToken()
	}

	if a.store != nil {
		revoked, err := a.store.IsBlacklisted(ctx, tok)
		if err != nil {
			a.logger.Warn("blacklist lookup failed", "error", err)
		}
		if revoked {
			return nil, apierror.TokenRevoked()
		}
	}

	claims, err := a.Parse(tok)
	if err != nil {
		a.logger.Debug("token rejected", "error", err)
		return nil, apierror.InvalidToken()
	}

	if claims.TenantID != "" && a.store != nil {
		valid, err := a.store.IsTenantValid(ctx, claims.TenantID)
		if err != nil {
			a.logger.Warn("tenant validity lookup failed", "tenant_id", claims.TenantID, "error", err)
			valid = true
		}
		if !valid {
			return nil, apierror.TenantAccessDenied()
		}
	}

	id := &Identity{UserID: claims.UserID, TenantID: claims.TenantID, Role: claims.Role, Email: claims.Email}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	return id, nil
}

// Parse verifies an HS256 token against the shared secret.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// publicRoutes lists paths, relative to the gateway prefix, that skip
// authentication per service. Each entry also covers its sub-paths.
var publicRoutes = map[string][]string{
	"auth": {
		"/auth/login",
		"/auth/register",
		"/auth/forgot-password",
		"/auth/reset-password",
		"/auth/refresh",
		"/auth/verify-email",
	},
}

// IsPublicRoute reports whether path on the matched service bypasses the
// authenticator. Matching is on whole path segments under prefix.
func IsPublicRoute(prefix, service, path string) bool {
	rest, ok := strings.CutPrefix(path, strings.TrimSuffix(prefix, "/"))
	if !ok {
		return false
	}
	for _, p := range publicRoutes[service] {
		if rest == p || strings.HasPrefix(rest, p+"/") {
			return true
		}
	}
	return false
}
