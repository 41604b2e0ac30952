package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gridforge/marketauth/internal/store/core"
)

// GetActorTokenData devuelve lo que el minter necesita del actor: número de
// actor y market roles con sus grid areas (cuando la función las tiene).
func (s *Store) GetActorTokenData(ctx context.Context, actorID string) (core.ActorTokenData, error) {
	const aq = `SELECT id, actor_number FROM actors WHERE id = $1;`
	var out core.ActorTokenData
	if err := s.pool.QueryRow(ctx, aq, actorID).Scan(&out.ActorID, &out.ActorNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ActorTokenData{}, core.ErrNotFound
		}
		return core.ActorTokenData{}, err
	}

	const rq = `
SELECT mr.function, ga.grid_area_code
FROM actor_market_roles mr
LEFT JOIN actor_grid_areas ga
  ON ga.actor_id = mr.actor_id AND ga.function = mr.function
WHERE mr.actor_id = $1
ORDER BY mr.function, ga.grid_area_code;`
	rows, err := s.pool.Query(ctx, rq, actorID)
	if err != nil {
		return core.ActorTokenData{}, err
	}
	defer rows.Close()

	// Las filas vienen ordenadas por función; agrupamos secuencialmente.
	byIndex := map[core.EicFunction]int{}
	for rows.Next() {
		var fn string
		var code *string
		if err := rows.Scan(&fn, &code); err != nil {
			return core.ActorTokenData{}, err
		}
		f := core.EicFunction(fn)
		idx, ok := byIndex[f]
		if !ok {
			out.MarketRoles = append(out.MarketRoles, core.MarketRole{Function: f})
			idx = len(out.MarketRoles) - 1
			byIndex[f] = idx
		}
		if code != nil {
			out.MarketRoles[idx].GridAreaCodes = append(out.MarketRoles[idx].GridAreaCodes, *code)
		}
	}
	return out, rows.Err()
}
