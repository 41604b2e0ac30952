// Package router define las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/http/handlers"
	mw "github.com/gridforge/marketauth/internal/http/middlewares"
	"github.com/gridforge/marketauth/internal/ticket"
	"github.com/gridforge/marketauth/internal/token"
)

// Deps agrupa las dependencias del router.
type Deps struct {
	Issuer    string
	Ring      *token.KeyRing
	Minter    *token.Minter
	Tickets   *ticket.Service
	Readiness map[string]handlers.Pinger
	Metrics   http.Handler // handler de /metrics; opcional
}

// New arma el router completo con la cadena de middlewares estándar:
// recover → request-id → logging → métricas.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/.well-known/openid-configuration", handlers.NewDiscoveryHandler(deps.Issuer))
	r.Get("/token/keys", handlers.NewJWKSHandler(deps.Ring))
	r.Post("/token", handlers.NewTokenHandler(deps.Minter))
	r.Post("/createDownloadToken", handlers.NewCreateDownloadTokenHandler(deps.Tickets))
	r.Post("/exchangeDownloadToken/{id}", handlers.NewExchangeDownloadTokenHandler(deps.Tickets))

	r.Get("/readyz", handlers.NewReadyzHandler(deps.Readiness))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return mw.Chain(r,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		func(next http.Handler) http.Handler { return httpx.WithMetrics(next) },
	)
}
