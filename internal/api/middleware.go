// Package api implements the Verba REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenAuth checks requests against the configured API token.
type tokenAuth struct {
	token []byte
}

func newTokenAuth(token string) *tokenAuth {
	return &tokenAuth{token: []byte(token)}
}

// Bearer requires "Authorization: Bearer <token>".
func (a *tokenAuth) Bearer(next http.Handler) http.Handler {
	return a.require(next, false)
}

// Stream is Bearer for the event stream. Browsers cannot set headers on an
// EventSource, so ?access_token=<token> is accepted as well.
func (a *tokenAuth) Stream(next http.Handler) http.Handler {
	return a.require(next, true)
}

func (a *tokenAuth) require(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r)
		if presented == "" && allowQuery {
			presented = r.URL.Query().Get("access_token")
		}
		if !a.valid(presented) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="verba"`)
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *tokenAuth) valid(presented string) bool {
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), a.token) == 1
}

// bearerToken returns the token of a Bearer Authorization header. The scheme
// is case-insensitive.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
