package token

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"path"

	"github.com/gridforge/marketauth/internal/store/core"
)

// Algorithm es el algoritmo de firma del token interno. Fijo por contrato.
const Algorithm = "RS256"

var ErrNoSigningKey = errors.New("no_current_signing_key")

// KeyStore abstrae el almacén remoto de claves asimétricas: enumeración de
// versiones, material público y la operación de firma. El material privado
// nunca sale del almacén.
type KeyStore interface {
	// CurrentVersion resuelve la versión "actual" de la clave con ese nombre.
	CurrentVersion(ctx context.Context, keyName string) (core.SigningKey, error)

	// ListVersions enumera todas las versiones de la clave, habilitadas o no,
	// en el orden de enumeración del almacén.
	ListVersions(ctx context.Context, keyName string) ([]core.SigningKey, error)

	// Sign firma un digest SHA-256 con la versión indicada (RSA PKCS#1 v1.5).
	Sign(ctx context.Context, keyName, versionID string, digest []byte) ([]byte, error)
}

// SigningKeyHandle referencia una versión de clave usable para firmar.
type SigningKeyHandle struct {
	KeyName   string
	VersionID string
	Algorithm string
}

// KID deriva el key id publicado: el último segmento de path del
// identificador de versión. Los verificadores lo matchean por igualdad
// exacta contra el kid del JWKS.
func (h SigningKeyHandle) KID() string {
	return path.Base(h.VersionID)
}

// PublicKeyDescriptor es el material público de una versión habilitada,
// listo para publicar como JWK (n y e en base64url sin padding).
type PublicKeyDescriptor struct {
	KID string
	Kty string
	N   string
	E   string
}

// KeyRing resuelve la clave de firma activa y publica el material público.
// No cachea nada: cada llamada es un round-trip al almacén, así una versión
// deshabilitada desaparece del JWKS en el siguiente request. Una caída del
// almacén se propaga tal cual: minteo y publicación fallan cerrados.
type KeyRing struct {
	store   KeyStore
	keyName string
}

func NewKeyRing(store KeyStore, keyName string) *KeyRing {
	return &KeyRing{store: store, keyName: keyName}
}

// GetSigningHandle resuelve la versión actual de la clave configurada.
func (r *KeyRing) GetSigningHandle(ctx context.Context) (SigningKeyHandle, error) {
	k, err := r.store.CurrentVersion(ctx, r.keyName)
	if err != nil {
		return SigningKeyHandle{}, fmt.Errorf("keyring: resolve current version: %w", err)
	}
	return SigningKeyHandle{
		KeyName:   k.KeyName,
		VersionID: k.VersionID,
		Algorithm: Algorithm,
	}, nil
}

// GetPublicKeys enumera las versiones, filtra las habilitadas y devuelve sus
// descriptores públicos en el orden de enumeración del almacén.
func (r *KeyRing) GetPublicKeys(ctx context.Context) ([]PublicKeyDescriptor, error) {
	versions, err := r.store.ListVersions(ctx, r.keyName)
	if err != nil {
		return nil, fmt.Errorf("keyring: list versions: %w", err)
	}

	out := make([]PublicKeyDescriptor, 0, len(versions))
	for _, v := range versions {
		if !v.Enabled {
			continue
		}
		pub, err := ParseRSAPublicKeyPEM(v.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("keyring: version %s: %w", v.VersionID, err)
		}
		out = append(out, PublicKeyDescriptor{
			KID: path.Base(v.VersionID),
			Kty: "RSA",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(bigEndianInt(pub.E)),
		})
	}
	return out, nil
}

// Sign delega la firma del digest en el almacén.
func (r *KeyRing) Sign(ctx context.Context, h SigningKeyHandle, digest []byte) ([]byte, error) {
	sig, err := r.store.Sign(ctx, h.KeyName, h.VersionID, digest)
	if err != nil {
		return nil, fmt.Errorf("keyring: sign: %w", err)
	}
	return sig, nil
}

// ParseRSAPublicKeyPEM decodifica una clave pública RSA en PEM (PKIX).
func ParseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid public key pem")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}
	return pub, nil
}

// bigEndianInt codifica el exponente público como big-endian sin ceros a la
// izquierda (lo que espera el campo "e" de un JWK).
func bigEndianInt(e int) []byte {
	b := []byte{
		byte(e >> 24),
		byte(e >> 16),
		byte(e >> 8),
		byte(e),
	}
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}
