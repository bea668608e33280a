package observability

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
//
// If the response has already been partially written (mid-stream), no
// error body is sent; the panic is still logged.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						"request_id", RequestIDFromContext(r.Context()),
						"path", r.URL.Path,
						"panic", fmt.Sprint(rec))
					if !sw.written {
						http.Error(sw, "internal server error", http.StatusInternalServerError)
					}
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
