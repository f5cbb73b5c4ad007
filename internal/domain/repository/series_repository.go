package repository

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// SeriesRepository define el puerto de persistencia para las series de numeración.
type SeriesRepository interface {
	// Create devuelve domain.ErrConflict si ya existe (company_id, code, doc_type).
	Create(ctx context.Context, s *entity.Series) error
	GetByID(ctx context.Context, id string) (*entity.Series, error)

	// GetForUpdate lee la serie bloqueando la fila hasta el fin de la transacción.
	// Es el único punto de serialización estricta de la emisión: sin él habría números duplicados.
	GetForUpdate(ctx context.Context, id string) (*entity.Series, error)

	List(ctx context.Context, limit, offset int) ([]*entity.Series, error)
	Update(ctx context.Context, s *entity.Series) error
	SetNextNumber(ctx context.Context, id string, next int64, at time.Time) error
}
