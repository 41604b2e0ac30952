package handlers

import (
	"net/http"
	"strings"

	httpx "github.com/gridforge/marketauth/internal/http"
)

// discoveryDocument es el documento mínimo que publica este servicio: los
// verificadores del token interno solo necesitan issuer y jwks_uri.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// NewDiscoveryHandler publica GET /.well-known/openid-configuration.
func NewDiscoveryHandler(issuer string) http.HandlerFunc {
	iss := strings.TrimRight(issuer, "/")
	doc := discoveryDocument{
		Issuer:  iss,
		JWKSURI: iss + "/token/keys",
	}
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
