package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Keys holds the API keys accepted by the read (Public) and admin routes.
// Admin keys are accepted everywhere.
type Keys struct {
	Public []string
	Admin  []string
}

// Role is the access level a request authenticated with.
type Role string

const (
	RoleNone   Role = ""
	RolePublic Role = "public"
	RoleAdmin  Role = "admin"
	// RoleOpen marks requests let through because no keys are configured.
	RoleOpen Role = "open"
)

type roleKey struct{}

// RoleFrom returns the role stored by RequireAny or RequireAdmin.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func (k Keys) roleOf(given string) Role {
	switch {
	case matches(given, k.Admin):
		return RoleAdmin
	case matches(given, k.Public):
		return RolePublic
	default:
		return RoleNone
	}
}

// readAuth accepts "Authorization: Bearer <key>" or "X-API-Key: <key>".
func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func matches(given string, set []string) bool {
	if given == "" {
		return false
	}
	found := 0
	for _, k := range set {
		found |= subtle.ConstantTimeCompare([]byte(given), []byte(k))
	}
	return found == 1
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func withRole(next http.Handler, w http.ResponseWriter, r *http.Request, role Role) {
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
}

// RequireAny allows requests that present either a public or admin key.
// If no keys are configured, it allows all requests (handy for local dev).
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	open := len(keys.Public) == 0 && len(keys.Admin) == 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				withRole(next, w, r, RoleOpen)
				return
			}
			role := keys.roleOf(readAuth(r))
			if role == RoleNone {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			withRole(next, w, r, role)
		})
	}
}

// RequireAdmin only permits requests that present an admin key: 401 without
// any valid key, 403 with a public one. If no admin keys are configured, it
// allows all requests (dev).
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	open := len(keys.Admin) == 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				withRole(next, w, r, RoleOpen)
				return
			}
			switch keys.roleOf(readAuth(r)) {
			case RoleAdmin:
				withRole(next, w, r, RoleAdmin)
			case RolePublic:
				deny(w, http.StatusForbidden, "forbidden")
			default:
				deny(w, http.StatusUnauthorized, "unauthorized")
			}
		})
	}
}
