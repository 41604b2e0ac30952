package pg

import (
	"context"
	"time"
)

// RecordLogin registra el timestamp de login del usuario. GREATEST hace la
// escritura idempotente: registrar el mismo instante o uno anterior no
// retrocede el valor.
func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	const q = `
UPDATE users
SET last_login = GREATEST(COALESCE(last_login, 'epoch'::timestamptz), $2)
WHERE id = $1;`
	_, err := s.pool.Exec(ctx, q, userID, at)
	return err
}
