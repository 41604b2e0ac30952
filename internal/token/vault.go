package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/gridforge/marketauth/internal/store/core"
)

// signingKeyStore es lo que StoreVault necesita del repositorio de claves.
type signingKeyStore interface {
	GetCurrentSigningKey(ctx context.Context, keyName string) (*core.SigningKey, error)
	ListSigningKeys(ctx context.Context, keyName string) ([]core.SigningKey, error)
	GetSigningKeyVersion(ctx context.Context, keyName, versionID string) (*core.SigningKey, error)
}

// StoreVault implementa KeyStore sobre el repositorio de claves versionadas.
// Hace de "almacén remoto": la clave privada se lee fila por fila al firmar
// y nunca queda retenida en memoria entre llamadas.
type StoreVault struct {
	store signingKeyStore
}

func NewStoreVault(s signingKeyStore) *StoreVault {
	return &StoreVault{store: s}
}

func (v *StoreVault) CurrentVersion(ctx context.Context, keyName string) (core.SigningKey, error) {
	k, err := v.store.GetCurrentSigningKey(ctx, keyName)
	if err != nil {
		return core.SigningKey{}, err
	}
	if k == nil || !k.Enabled {
		return core.SigningKey{}, ErrNoSigningKey
	}
	out := *k
	out.PrivateKeyPEM = nil
	return out, nil
}

func (v *StoreVault) ListVersions(ctx context.Context, keyName string) ([]core.SigningKey, error) {
	keys, err := v.store.ListSigningKeys(ctx, keyName)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].PrivateKeyPEM = nil
	}
	return keys, nil
}

func (v *StoreVault) Sign(ctx context.Context, keyName, versionID string, digest []byte) ([]byte, error) {
	k, err := v.store.GetSigningKeyVersion(ctx, keyName, versionID)
	if err != nil {
		return nil, err
	}
	if k == nil || !k.Enabled {
		return nil, ErrNoSigningKey
	}
	priv, err := ParseRSAPrivateKeyPEM(k.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("vault: version %s: %w", versionID, err)
	}
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest)
}

// ParseRSAPrivateKeyPEM decodifica una clave privada RSA en PEM
// (PKCS#8 o PKCS#1).
func ParseRSAPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid private key pem")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		priv, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not rsa")
		}
		return priv, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
