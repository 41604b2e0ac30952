package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gridforge/marketauth/internal/store/core"
)

// GetCurrentSigningKey devuelve la versión marcada como actual de la clave.
func (s *Store) GetCurrentSigningKey(ctx context.Context, keyName string) (*core.SigningKey, error) {
	const q = `
SELECT key_name, version_id, public_key_pem, private_key_pem, enabled, is_current, created_at
FROM signing_keys
WHERE key_name = $1 AND is_current;`
	row := s.pool.QueryRow(ctx, q, keyName)
	k, err := scanSigningKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

// ListSigningKeys enumera todas las versiones de la clave, habilitadas o no.
func (s *Store) ListSigningKeys(ctx context.Context, keyName string) ([]core.SigningKey, error) {
	const q = `
SELECT key_name, version_id, public_key_pem, private_key_pem, enabled, is_current, created_at
FROM signing_keys
WHERE key_name = $1
ORDER BY created_at;`
	rows, err := s.pool.Query(ctx, q, keyName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// GetSigningKeyVersion devuelve una versión puntual (con material privado).
func (s *Store) GetSigningKeyVersion(ctx context.Context, keyName, versionID string) (*core.SigningKey, error) {
	const q = `
SELECT key_name, version_id, public_key_pem, private_key_pem, enabled, is_current, created_at
FROM signing_keys
WHERE key_name = $1 AND version_id = $2;`
	row := s.pool.QueryRow(ctx, q, keyName, versionID)
	k, err := scanSigningKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return k, nil
}

// InsertSigningKey inserta una versión nueva y la marca como actual, en una
// transacción para que nunca haya dos versiones actuales.
func (s *Store) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE signing_keys SET is_current = false WHERE key_name = $1 AND is_current`,
		k.KeyName); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO signing_keys (key_name, version_id, public_key_pem, private_key_pem, enabled, is_current, created_at)
VALUES ($1, $2, $3, $4, $5, true, NOW())`,
		k.KeyName, k.VersionID, k.PublicKeyPEM, k.PrivateKeyPEM, k.Enabled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DisableSigningKey deshabilita una versión: desaparece del JWKS en el
// siguiente request y deja de poder firmar.
func (s *Store) DisableSigningKey(ctx context.Context, keyName, versionID string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE signing_keys SET enabled = false WHERE key_name = $1 AND version_id = $2`,
		keyName, versionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSigningKey(row rowScanner) (*core.SigningKey, error) {
	var k core.SigningKey
	if err := row.Scan(&k.KeyName, &k.VersionID, &k.PublicKeyPEM, &k.PrivateKeyPEM,
		&k.Enabled, &k.IsCurrent, &k.CreatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}
