package handlers

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/gridforge/marketauth/internal/http"
)

// Pinger es lo que readyz necesita de cada dependencia.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewReadyzHandler responde 200 si las dependencias contestan el ping.
func NewReadyzHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, status)
	}
}
