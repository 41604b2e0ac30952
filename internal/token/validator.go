package token

import (
	"context"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/gridforge/marketauth/internal/observability/logger"
)

// ValidatorConfig configura la validación del token externo.
type ValidatorConfig struct {
	Issuer   string
	Audience string

	// AllowAll cortocircuita la validación a siempre-válido. Solo para
	// test/integración; se inyecta por configuración, default deshabilitado,
	// nunca alcanzable por input de runtime.
	AllowAll bool
}

// Validator valida el token de identidad externo: firma contra el JWKS del
// proveedor, issuer, audience y ventana de vida sin tolerancia de reloj.
// No muta ni cachea nada propio; cualquier fallo es un "false" uniforme.
type Validator struct {
	cfg  ValidatorConfig
	meta *MetadataManager
}

func NewValidator(cfg ValidatorConfig, meta *MetadataManager) *Validator {
	return &Validator{cfg: cfg, meta: meta}
}

// Validate responde solo sí/no. Nunca devuelve error: el caller trata
// cualquier "false" como rechazo, sin distinguir la causa.
func (v *Validator) Validate(ctx context.Context, token string) bool {
	if v.cfg.AllowAll {
		return true
	}

	parsed, err := jwtv5.Parse(token, v.meta.Keyfunc(ctx),
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithIssuer(v.cfg.Issuer),
		jwtv5.WithAudience(v.cfg.Audience),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		logger.From(ctx).Debug("external token rejected", logger.Err(err))
		return false
	}
	return true
}
