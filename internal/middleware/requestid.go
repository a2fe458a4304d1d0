// Package middleware holds cross-cutting HTTP middleware not tied to the
// API surface.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/fleetops/transitcore/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id: the inbound
// X-Request-ID when the caller supplies one, otherwise a freshly generated
// 32-char hex id. The id rides the request context and is echoed on the
// response header, so infrastructure error payloads and server logs can be
// matched to a client report.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			var b [16]byte
			_, _ = rand.Read(b[:])
			id = hex.EncodeToString(b[:])
		}

		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
