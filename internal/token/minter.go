package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/gridforge/marketauth/internal/metrics"
	"github.com/gridforge/marketauth/internal/observability/logger"
	"github.com/gridforge/marketauth/internal/store/core"
)

// Nombres de claims del token interno.
const (
	ClaimSubject       = "sub"
	ClaimAuthorized    = "azp"
	ClaimRole          = "role"
	ClaimExternalToken = "token"
	ClaimActorNumber   = "actornumber"
	ClaimMarketRoles   = "marketroles"
	ClaimGridAreas     = "gridareas"
	ClaimMultiTenancy  = "multitenancy"
)

// PermissionResolver resuelve (sujeto externo, actor) → identidad interna y
// permisos. Colaborador externo; not-found significa "sin acceso".
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, externalSubject, actorID string) (core.PermissionGrant, error)
}

// ActorDataResolver resuelve los datos de token del actor destino.
type ActorDataResolver interface {
	GetActorTokenData(ctx context.Context, actorID string) (core.ActorTokenData, error)
}

// LoginRecorder registra el instante de login del usuario interno.
// La escritura es idempotente: registrar el mismo instante (o uno posterior)
// es inocuo.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// Minter traduce un token de identidad externo en un token interno firmado
// con los permisos resueltos del caller.
type Minter struct {
	validator   *Validator
	ring        *KeyRing
	permissions PermissionResolver
	actors      ActorDataResolver
	logins      LoginRecorder
	now         func() time.Time
}

func NewMinter(v *Validator, ring *KeyRing, perms PermissionResolver, actors ActorDataResolver, logins LoginRecorder) *Minter {
	return &Minter{
		validator:   v,
		ring:        ring,
		permissions: perms,
		actors:      actors,
		logins:      logins,
		now:         time.Now,
	}
}

// Mint valida el token externo, resuelve permisos y datos del actor, arma
// las claims y firma. Cualquier condición no autorizada colapsa en
// core.ErrUnauthorized: el caller no distingue "token malo" de "sin permisos
// para este actor", y nunca recibe un token parcial.
func (m *Minter) Mint(ctx context.Context, externalToken, actorID string) (string, error) {
	if !m.validator.Validate(ctx, externalToken) {
		metrics.RecordMint("rejected")
		return "", core.ErrUnauthorized
	}

	// La validación responde solo sí/no: la extracción de claims se rehace acá.
	extClaims, err := parseExternalClaims(externalToken)
	if err != nil {
		metrics.RecordMint("rejected")
		return "", core.ErrUnauthorized
	}
	externalSubject, _ := extClaims["sub"].(string)
	if externalSubject == "" {
		metrics.RecordMint("rejected")
		return "", core.ErrUnauthorized
	}

	grant, err := m.permissions.ResolvePermissions(ctx, externalSubject, actorID)
	if err != nil {
		metrics.RecordMint("rejected")
		return "", core.ErrUnauthorized
	}
	actor, err := m.actors.GetActorTokenData(ctx, actorID)
	if err != nil {
		metrics.RecordMint("rejected")
		return "", core.ErrUnauthorized
	}

	handle, err := m.ring.GetSigningHandle(ctx)
	if err != nil {
		// Caída del almacén de claves: fatal, no unauthorized.
		metrics.RecordMint("error")
		return "", err
	}

	payload := m.assembleClaims(externalToken, actorID, grant, actor, extClaims)

	signed, err := m.sign(ctx, handle, payload)
	if err != nil {
		metrics.RecordMint("error")
		return "", err
	}

	// Sincrónico desde el punto de vista del caller, pero un fallo acá no
	// invalida el token ya emitido.
	if err := m.logins.RecordLogin(ctx, grant.UserID, m.now().UTC()); err != nil {
		logger.From(ctx).Warn("login timestamp not recorded",
			logger.UserID(grant.UserID), logger.Err(err))
	}

	logger.From(ctx).Debug("token minted",
		logger.UserID(grant.UserID), logger.ActorID(actorID), logger.KID(handle.KID()))
	metrics.RecordMint("ok")
	return signed, nil
}

// assembleClaims arma el payload del token interno.
func (m *Minter) assembleClaims(externalToken, actorID string, grant core.PermissionGrant, actor core.ActorTokenData, ext map[string]any) map[string]any {
	perms := grant.PermissionCodes
	if perms == nil {
		perms = []string{}
	}
	claims := map[string]any{
		ClaimSubject:       grant.UserID,
		ClaimAuthorized:    actorID,
		ClaimRole:          perms,
		ClaimExternalToken: externalToken,
		ClaimActorNumber:   actor.ActorNumber,
		ClaimMarketRoles:   joinFunctions(actor.MarketRoles),
	}

	// Solo el rol con función grid access provider aporta grid areas,
	// no la unión de todos los roles.
	for _, mr := range actor.MarketRoles {
		if mr.Function == core.FunctionGridAccessProvider {
			claims[ClaimGridAreas] = strings.Join(mr.GridAreaCodes, ",")
			break
		}
	}

	if grant.IsFas {
		claims[ClaimMultiTenancy] = true
	}

	// Ventana de validez copiada literal del token externo; iat es el
	// instante de emisión.
	claims["iat"] = m.now().UTC().Unix()
	if v, ok := numericClaim(ext, "nbf"); ok {
		claims["nbf"] = v
	}
	if v, ok := numericClaim(ext, "exp"); ok {
		claims["exp"] = v
	}

	return claims
}

// sign produce la serialización compacta y firma vía el key ring.
//
// Regla de formato de wire: se firma el string header.payload con el padding
// base64url del final removido con un trim explícito. Es un contrato byte a
// byte con los verificadores existentes; no tocar.
func (m *Minter) sign(ctx context.Context, handle SigningKeyHandle, payload map[string]any) (string, error) {
	header := map[string]any{
		"alg": handle.Algorithm,
		"typ": "JWT",
		"kid": handle.KID(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("minter: encode header: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("minter: encode payload: %w", err)
	}

	value := base64.URLEncoding.EncodeToString(headerJSON) + "." + base64.URLEncoding.EncodeToString(payloadJSON)
	value = strings.TrimRight(value, "=")

	digest := sha256.Sum256([]byte(value))
	sig, err := m.ring.Sign(ctx, handle, digest[:])
	if err != nil {
		return "", err
	}

	return value + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// parseExternalClaims extrae las claims del token externo sin validar firma
// (la validación ya ocurrió, y acá solo necesitamos sub/nbf/exp).
func parseExternalClaims(token string) (map[string]any, error) {
	claims := jwtv5.MapClaims{}
	parser := jwtv5.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func numericClaim(claims map[string]any, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func joinFunctions(roles []core.MarketRole) string {
	fns := make([]string, 0, len(roles))
	for _, r := range roles {
		fns = append(fns, string(r.Function))
	}
	return strings.Join(fns, ",")
}
