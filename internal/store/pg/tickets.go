package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridforge/marketauth/internal/store/core"
)

func (s *Store) InsertTicket(ctx context.Context, t core.DownloadTicket) error {
	const q = `
INSERT INTO download_tickets (id, authorization_header, created_at, consumed)
VALUES ($1, $2, $3, false)`
	_, err := s.pool.Exec(ctx, q, t.ID, t.Authorization, t.CreatedAt)
	return err
}

// ConsumeTicket es el compare-and-set: un único UPDATE condicional. El
// predicado consumed = false garantiza que bajo canjes concurrentes del
// mismo id exactamente uno recibe la fila.
func (s *Store) ConsumeTicket(ctx context.Context, id string, notBefore time.Time) (string, error) {
	const q = `
UPDATE download_tickets
SET consumed = true
WHERE id = $1 AND NOT consumed AND created_at > $2
RETURNING authorization_header;`
	var auth string
	err := s.pool.QueryRow(ctx, q, id, notBefore).Scan(&auth)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", core.ErrNotFound
		}
		return "", err
	}
	return auth, nil
}

func (s *Store) PurgeTickets(ctx context.Context, olderThan time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM download_tickets WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
