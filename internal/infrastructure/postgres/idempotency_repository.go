package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

// IdempotencyRepo claves de idempotencia sobre la tabla idempotency_keys.
type IdempotencyRepo struct {
	q Querier
}

// NewIdempotencyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIdempotencyRepository(q Querier) *IdempotencyRepo {
	return &IdempotencyRepo{q: q}
}

func (r *IdempotencyRepo) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM idempotency_keys WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists idempotency key: %w", err)
	}
	return exists, nil
}

// Reserve usa ON CONFLICT DO NOTHING: con dos transacciones compitiendo por la misma clave,
// la segunda espera al commit de la primera y no inserta; si la primera hace rollback, la segunda gana.
func (r *IdempotencyRepo) Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO idempotency_keys (key, scope, resource_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.Scope, nullIfEmpty(rec.ResourceID), rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
