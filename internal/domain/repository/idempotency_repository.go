package repository

import (
	"context"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// IdempotencyRepository persiste las claves de idempotencia (marcas permanentes).
type IdempotencyRepository interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Reserve inserta el registro solo si la clave no existe (insert-if-absent atómico).
	// Devuelve true si lo insertó, false si la clave ya existía.
	Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (bool, error)
}
