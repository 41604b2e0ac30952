package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/gridforge/marketauth/internal/cache"
)

const maxMetadataBody = 1 << 20 // 1MB

// openIDMetadata es el documento de configuración del proveedor externo.
// Solo nos interesa jwks_uri.
type openIDMetadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jsonWebKey struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// MetadataManager refresca el JWKS del proveedor de identidad externo desde
// su metadata address. Retiene el resultado en cache por un TTL corto y
// colapsa refreshes concurrentes con singleflight.
type MetadataManager struct {
	metadataAddress string
	httpc           *http.Client
	cache           cache.Cache
	ttl             time.Duration
	sf              singleflight.Group
}

func NewMetadataManager(metadataAddress string, c cache.Cache, ttl time.Duration) *MetadataManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MetadataManager{
		metadataAddress: metadataAddress,
		httpc:           &http.Client{Timeout: 10 * time.Second},
		cache:           c,
		ttl:             ttl,
	}
}

// Keyfunc devuelve un jwt.Keyfunc que resuelve la clave pública RSA por el
// 'kid' del header contra el JWKS del proveedor.
func (m *MetadataManager) Keyfunc(ctx context.Context) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid_missing")
		}
		return m.PublicKeyByKID(ctx, kid)
	}
}

// PublicKeyByKID busca la clave pública del proveedor por kid.
func (m *MetadataManager) PublicKeyByKID(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, err := m.keySet(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if k.KID != kid {
			continue
		}
		return jwkToRSA(k)
	}
	return nil, fmt.Errorf("kid %q not in provider jwks", kid)
}

// keySet devuelve el JWKS del proveedor, sirviendo del cache cuando puede.
func (m *MetadataManager) keySet(ctx context.Context) (*jsonWebKeySet, error) {
	const cacheKey = "openid:jwks"

	if b, ok := m.cache.Get(cacheKey); ok {
		var set jsonWebKeySet
		if json.Unmarshal(b, &set) == nil {
			return &set, nil
		}
	}

	v, err, _ := m.sf.Do(cacheKey, func() (any, error) {
		raw, err := m.refresh(ctx)
		if err != nil {
			return nil, err
		}
		m.cache.Set(cacheKey, raw, m.ttl)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	var set jsonWebKeySet
	if err := json.Unmarshal(v.([]byte), &set); err != nil {
		return nil, fmt.Errorf("openid: decode jwks: %w", err)
	}
	return &set, nil
}

// refresh baja el documento de metadata y luego el JWKS que referencia.
func (m *MetadataManager) refresh(ctx context.Context) ([]byte, error) {
	metaRaw, err := m.fetch(ctx, m.metadataAddress)
	if err != nil {
		return nil, fmt.Errorf("openid: fetch metadata: %w", err)
	}
	var meta openIDMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("openid: decode metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return nil, errors.New("openid: metadata without jwks_uri")
	}
	jwksRaw, err := m.fetch(ctx, meta.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("openid: fetch jwks: %w", err)
	}
	return jwksRaw, nil
}

func (m *MetadataManager) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMetadataBody))
}

func jwkToRSA(k jsonWebKey) (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported kty %q", k.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk n: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk e: %w", err)
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
