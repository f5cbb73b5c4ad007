package repository

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// SubmissionRepository define la cola durable de envíos al registro AGT.
// Todas las transiciones son actualizaciones condicionales sobre status/claim.
type SubmissionRepository interface {
	Enqueue(ctx context.Context, e *entity.SubmissionEntry) error
	GetByID(ctx context.Context, id string) (*entity.SubmissionEntry, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.SubmissionEntry, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.SubmissionEntry, error)

	// ListDue devuelve entradas listas para procesar (pending, o error con reintento vencido) sin tomarlas.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.SubmissionEntry, error)
	CountDue(ctx context.Context, now time.Time) (int, error)

	// Claim marca la entrada en vuelo si sigue disponible y ninguna otra entrada de la misma
	// factura está en vuelo. Devuelve domain.ErrClaimConflict si otro worker ganó la carrera.
	Claim(ctx context.Context, id, token string, now time.Time) (*entity.SubmissionEntry, error)

	// RecordAttempt persiste attempts/last_attempt_at antes de la llamada externa.
	RecordAttempt(ctx context.Context, id, token string, attempts int, at time.Time) error

	// Complete escribe el resultado del intento y libera el claim (CAS sobre token).
	Complete(ctx context.Context, e *entity.SubmissionEntry, token string) error

	// Requeue devuelve una entrada en error a pending sin tocar attempts (reintento del operador).
	Requeue(ctx context.Context, id string, now time.Time) (*entity.SubmissionEntry, error)

	// ReleaseStale libera claims abandonados (worker caído) anteriores a before.
	ReleaseStale(ctx context.Context, before time.Time) (int, error)
}
