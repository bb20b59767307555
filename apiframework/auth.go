package apiframework

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/smokeyworks/smokey/libauth"
)

// Endpoints reachable without a token. Probes and version checks run before
// any credentials exist.
var openPaths = map[string]bool{
	"/health":  true,
	"/version": true,
}

// TokenMiddleware authenticates bearer tokens and stamps the resolved
// identity into the request context. Capability checks happen downstream in
// the services, keyed on that identity.
func TokenMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			_ = Error(w, r, libauth.ErrTokenMissing, AuthorizeOperation)
			return
		}

		identity, err := libauth.ParseIdentity(secret, token)
		if err != nil {
			_ = Error(w, r, fmt.Errorf("%w: %w", libauth.ErrNotAuthorized, err), AuthorizeOperation)
			return
		}

		next.ServeHTTP(w, r.WithContext(libauth.WithIdentity(r.Context(), identity)))
	})
}
