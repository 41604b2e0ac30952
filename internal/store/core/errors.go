package core

import "errors"

var (
	// ErrNotFound: la entidad no existe (o el ticket ya fue consumido/expiró).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized: token externo inválido o sin permisos para el actor.
	// El caller nunca distingue entre ambas causas.
	ErrUnauthorized = errors.New("unauthorized")

	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)
