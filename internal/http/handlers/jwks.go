package handlers

import (
	"net/http"

	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/metrics"
	"github.com/gridforge/marketauth/internal/observability/logger"
	"github.com/gridforge/marketauth/internal/token"
)

type jwk struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksResponse struct {
	Keys []jwk `json:"keys"`
}

// NewJWKSHandler publica GET /token/keys. Sin cache: el key ring enumera el
// almacén en cada request, así una versión deshabilitada desaparece de la
// respuesta de inmediato.
func NewJWKSHandler(ring *token.KeyRing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordJWKSRequest()

		descriptors, err := ring.GetPublicKeys(r.Context())
		if err != nil {
			logger.From(r.Context()).Error("key store unavailable", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "key_store_unavailable", "")
			return
		}

		resp := jwksResponse{Keys: make([]jwk, 0, len(descriptors))}
		for _, d := range descriptors {
			resp.Keys = append(resp.Keys, jwk{KID: d.KID, Kty: d.Kty, N: d.N, E: d.E})
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}
