package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gridforge/marketauth/internal/store/core"
)

// ResolvePermissions resuelve (sujeto externo, actor) → grant interno.
// Un usuario sin asignaciones sobre el actor (y sin full access scope) no
// tiene acceso: core.ErrUnauthorized.
func (s *Store) ResolvePermissions(ctx context.Context, externalSubject, actorID string) (core.PermissionGrant, error) {
	const uq = `
SELECT u.id, u.is_fas
FROM users u
WHERE u.external_id = $1;`
	var grant core.PermissionGrant
	if err := s.pool.QueryRow(ctx, uq, externalSubject).Scan(&grant.UserID, &grant.IsFas); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.PermissionGrant{}, core.ErrNotFound
		}
		return core.PermissionGrant{}, err
	}

	const pq = `
SELECT DISTINCT rp.permission
FROM user_roles ur
JOIN role_permissions rp ON rp.role = ur.role
WHERE ur.user_id = $1 AND ur.actor_id = $2
ORDER BY rp.permission;`
	rows, err := s.pool.Query(ctx, pq, grant.UserID, actorID)
	if err != nil {
		return core.PermissionGrant{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return core.PermissionGrant{}, err
		}
		grant.PermissionCodes = append(grant.PermissionCodes, p)
	}
	if err := rows.Err(); err != nil {
		return core.PermissionGrant{}, err
	}

	if len(grant.PermissionCodes) == 0 && !grant.IsFas {
		return core.PermissionGrant{}, core.ErrUnauthorized
	}
	return grant, nil
}
