// Package middleware holds HTTP middleware shared across modules.
package middleware

import (
	"net/http"

	"spendgate/pkg/requestcontext"
)

// HeaderUserID carries the authenticated user's ID, set by the upstream auth
// proxy after it verifies the session. The service trusts it the same way it
// trusts X-Forwarded-For: the proxy strips client-supplied values.
const HeaderUserID = "X-User-ID"

// Identity copies the authenticated user ID from the trusted header into the
// request context. Requests without the header proceed anonymously; handlers
// that need a user reject those themselves.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			r = r.WithContext(requestcontext.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}
