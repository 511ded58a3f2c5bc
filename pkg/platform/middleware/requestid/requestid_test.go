package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/pkg/requestcontext"
)

func captureID(t *testing.T, header string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return seen, rr
}

func TestMiddleware(t *testing.T) {
	t.Run("generates uuid when absent", func(t *testing.T) {
		id, rr := captureID(t, "")
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, rr.Header().Get(Header))
	})

	t.Run("reuses caller id", func(t *testing.T) {
		id, rr := captureID(t, "trace-abc")
		assert.Equal(t, "trace-abc", id)
		assert.Equal(t, "trace-abc", rr.Header().Get(Header))
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		id, _ := captureID(t, strings.Repeat("x", maxLength+1))
		_, err := uuid.Parse(id)
		require.NoError(t, err)
	})
}
