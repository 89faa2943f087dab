package permissions

import (
	"encoding/json"
	"net/http"

	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
)

// Header carries the caller's permissions as a JSON array of strings.
const Header = "X-User-Permissions"

// FromRequest parses the forwarded permission list. A missing or malformed
// header yields no permissions.
func FromRequest(r *http.Request) []string {
	raw := r.Header.Get(Header)
	if raw == "" {
		return nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil
	}
	return perms
}

// Require rejects requests whose caller lacks every one of the given
// permissions with 403 Forbidden.
func Require(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasAnyPermission(FromRequest(r), required) {
				httputil.Error(w, errors.Forbidden("missing permission"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
