package middleware

import (
	"net/http"
	"time"

	"idsync/pkg/requestcontext"
)

// RequestTime captures one timestamp at the start of the request so every
// store write within it carries the same "now".
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
