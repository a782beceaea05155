package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"idsync/pkg/requestcontext"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request id to the context and echoes it back in the
// response. Inbound ids are trusted so callers can correlate across services.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
