// Package ticket implementa los download tickets: credenciales opacas de un
// solo uso para canales que no pueden llevar un header Authorization.
//
// Máquina de estados por ticket: Created(unconsumed) → Consumed | Expired.
// Ambos estados terminales son permanentemente no canjeables, y para el
// caller fallan idéntico (not found).
package ticket

import (
	"context"
	"time"

	"github.com/gridforge/marketauth/internal/metrics"
	"github.com/gridforge/marketauth/internal/security/tokens"
	"github.com/gridforge/marketauth/internal/store/core"
)

const idBytes = 32

// Store persiste tickets. ConsumeTicket DEBE ser un único update condicional
// atómico (compare-and-set sobre consumed), nunca read-then-write: bajo
// intercambios concurrentes del mismo id exactamente uno gana.
type Store interface {
	InsertTicket(ctx context.Context, t core.DownloadTicket) error

	// ConsumeTicket marca consumed=true y devuelve el header encapsulado.
	// Falla con core.ErrNotFound si el id no existe, ya fue consumido, o
	// fue creado antes de notBefore (expirado).
	ConsumeTicket(ctx context.Context, id string, notBefore time.Time) (string, error)

	// PurgeTickets borra tickets creados antes del instante dado.
	PurgeTickets(ctx context.Context, olderThan time.Time) (int64, error)
}

// Service emite y canjea download tickets.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// Create genera un identificador inadivinable y guarda el header tal cual.
func (s *Service) Create(ctx context.Context, authorization string) (string, error) {
	id, err := tokens.GenerateOpaqueToken(idBytes)
	if err != nil {
		return "", err
	}
	t := core.DownloadTicket{
		ID:            id,
		Authorization: authorization,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.InsertTicket(ctx, t); err != nil {
		return "", err
	}
	metrics.RecordTicketCreated()
	return id, nil
}

// Exchange canjea el ticket una única vez dentro de su TTL. Expiración y
// consumo son gatillos independientes pero indistinguibles para el caller.
func (s *Service) Exchange(ctx context.Context, id string) (string, error) {
	notBefore := s.now().UTC().Add(-s.ttl)
	auth, err := s.store.ConsumeTicket(ctx, id, notBefore)
	if err != nil {
		metrics.RecordTicketExchange("not_found")
		return "", err
	}
	metrics.RecordTicketExchange("ok")
	return auth, nil
}

// Purge elimina tickets fuera de TTL (consumidos o no). Corre fuera del
// request path, desde el CLI administrativo.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	return s.store.PurgeTickets(ctx, s.now().UTC().Add(-s.ttl))
}
