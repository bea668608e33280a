package observability

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

// TraceIDHeader is the Portkey header that carries the request trace ID.
const TraceIDHeader = "x-portkey-trace-id"

// RequestID returns middleware that assigns a unique request ID to each
// request. If the incoming request carries an x-portkey-trace-id header,
// that value is used. Otherwise, a new unique ID is generated.
//
// The request ID is stored in the context, retrievable with
// RequestIDFromContext, and echoed back in the response's
// x-portkey-trace-id header so callers can correlate traffic.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(TraceIDHeader)
			if id == "" {
				id = generateRequestID()
			}
			w.Header().Set(TraceIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

// generateRequestID creates a new unique request ID as a hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
