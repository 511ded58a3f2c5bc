// Package requestid assigns each request a correlation ID.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"contactlink/pkg/requestcontext"
)

// Header is read from incoming requests and echoed on responses.
const Header = "X-Request-ID"

// maxLength bounds caller-supplied IDs.
const maxLength = 128

// Middleware reuses a caller-supplied X-Request-ID when it is sane and
// otherwise generates a UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxLength {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
