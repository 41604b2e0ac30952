package handlers

import (
	"errors"
	"net/http"

	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/observability/logger"
	"github.com/gridforge/marketauth/internal/store/core"
	"github.com/gridforge/marketauth/internal/token"
)

type mintRequest struct {
	ExternalToken string `json:"externalToken"`
	ActorID       string `json:"actorId"`
}

type mintResponse struct {
	Token string `json:"token"`
}

// NewTokenHandler atiende POST /token: canjea el token externo por el token
// interno firmado. Cualquier fallo de validación o resolución responde 401
// genérico, sin distinguir la causa.
func NewTokenHandler(minter *token.Minter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintRequest
		if !readStrictJSON(w, r, &req) {
			return
		}
		if req.ExternalToken == "" || req.ActorID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "externalToken y actorId son requeridos")
			return
		}

		signed, err := minter.Mint(r.Context(), req.ExternalToken, req.ActorID)
		if err != nil {
			if errors.Is(err, core.ErrUnauthorized) || errors.Is(err, core.ErrNotFound) {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			logger.From(r.Context()).Error("mint failed", logger.ActorID(req.ActorID), logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}

		httpx.WriteJSON(w, http.StatusOK, mintResponse{Token: signed})
	}
}
