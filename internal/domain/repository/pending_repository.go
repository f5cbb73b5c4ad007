package repository

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// PendingRepository es el buffer durable del cliente offline.
type PendingRepository interface {
	// Append asigna ID y CreatedAt. Una clave ya almacenada devuelve domain.ErrDuplicateRequest.
	Append(ctx context.Context, p *entity.PendingRequest) error
	// List devuelve las entradas en orden de inserción.
	List(ctx context.Context) ([]*entity.PendingRequest, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error
}
