package middlewares

import (
	"net/http"

	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/observability/logger"
)

// WithRecover captura panics y devuelve un error 500 en lugar de crashear.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.Any("panic", rec),
					)
					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "panic recovered")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
