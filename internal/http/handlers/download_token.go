package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpx "github.com/gridforge/marketauth/internal/http"
	"github.com/gridforge/marketauth/internal/observability/logger"
	"github.com/gridforge/marketauth/internal/store/core"
	"github.com/gridforge/marketauth/internal/ticket"
)

type createDownloadTokenResponse struct {
	DownloadToken string `json:"downloadToken"`
}

// NewCreateDownloadTokenHandler atiende POST /createDownloadToken: encapsula
// el header Authorization del caller detrás de un identificador opaco de un
// solo uso.
func NewCreateDownloadTokenHandler(svc *ticket.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if auth == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "falta header Authorization")
			return
		}

		id, err := svc.Create(r.Context(), auth)
		if err != nil {
			logger.From(r.Context()).Error("ticket create failed", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, createDownloadTokenResponse{DownloadToken: id})
	}
}

// NewExchangeDownloadTokenHandler atiende POST /exchangeDownloadToken/{id}:
// devuelve el header original como texto plano, una sola vez. Desconocido,
// consumido y expirado responden el mismo 404.
func NewExchangeDownloadTokenHandler(svc *ticket.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "")
			return
		}

		auth, err := svc.Exchange(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				httpx.WriteError(w, http.StatusNotFound, "not_found", "")
				return
			}
			logger.From(r.Context()).Error("ticket exchange failed", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(auth))
	}
}
