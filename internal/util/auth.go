package util

import (
	"net/http"
	"strings"
)

// ReadBearer returns the bearer token from the Authorization header, or "".
func ReadBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
