package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// Notifier despierta al worker tras re-encolar.
type Notifier interface {
	Notify()
}

// OpsUseCase centro de errores: consulta de la cola y reintentos manuales.
type OpsUseCase struct {
	tx       TxRunner
	repos    repository.Repos
	guard    *idempotency.Guard
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewOpsUseCase construye el caso de uso. notifier puede ser nil.
func NewOpsUseCase(tx TxRunner, repos repository.Repos, guard *idempotency.Guard, notifier Notifier, log zerolog.Logger) *OpsUseCase {
	return &OpsUseCase{tx: tx, repos: repos, guard: guard, notifier: notifier, log: log, now: time.Now}
}

func (uc *OpsUseCase) notify() {
	if uc.notifier != nil {
		uc.notifier.Notify()
	}
}

// List devuelve entradas por estado (vacío = todas), en orden de creación.
func (uc *OpsUseCase) List(ctx context.Context, status string, page dto.PageRequest) (*dto.SubmissionListResponse, error) {
	switch status {
	case "", entity.SubmissionStatusPending, entity.SubmissionStatusSuccess, entity.SubmissionStatusError:
	default:
		return nil, domain.Invalid("status", "debe ser pending, success o error")
	}
	page.DefaultPage()
	list, err := uc.repos.Submissions.ListByStatus(ctx, status, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return &dto.SubmissionListResponse{
		Items: dto.FromSubmissions(list),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}, nil
}

// ListFailed entradas en error (terminales y con reintento programado).
func (uc *OpsUseCase) ListFailed(ctx context.Context, page dto.PageRequest) (*dto.SubmissionListResponse, error) {
	return uc.List(ctx, entity.SubmissionStatusError, page)
}

// Get devuelve una entrada.
func (uc *OpsUseCase) Get(ctx context.Context, id string) (*dto.SubmissionResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	e, err := uc.repos.Submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}
	out := dto.FromSubmission(e)
	return &out, nil
}

// Retry devuelve una entrada en error a pending sin reiniciar attempts (scope retry).
// domain.ErrInvalidTransition si la entrada no está en error o está en vuelo.
func (uc *OpsUseCase) Retry(ctx context.Context, key, id string) (*dto.SubmissionResponse, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var requeued *entity.SubmissionEntry
	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeRetry, id); err != nil {
			return err
		}
		e, err := r.Submissions.Requeue(ctx, id, uc.now().UTC())
		if err != nil {
			return err
		}
		requeued = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("submission_id", id).Int("attempts", requeued.Attempts).Msg("envío re-encolado por el operador")
	uc.notify()
	out := dto.FromSubmission(requeued)
	return &out, nil
}

// RetryAll re-encola todas las entradas terminales (opcionalmente solo de un tipo de error,
// p. ej. "signer" tras corregir las credenciales).
func (uc *OpsUseCase) RetryAll(ctx context.Context, key, errorKind string) (int, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return 0, err
	}

	n := 0
	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeRetry, ""); err != nil {
			return err
		}
		failed, err := r.Submissions.ListByStatus(ctx, entity.SubmissionStatusError, 0, 0)
		if err != nil {
			return err
		}
		now := uc.now().UTC()
		for _, e := range failed {
			if !e.IsTerminal() || e.InFlight() {
				continue
			}
			if errorKind != "" && e.ErrorKind != errorKind {
				continue
			}
			if _, err := r.Submissions.Requeue(ctx, e.ID, now); err != nil {
				return fmt.Errorf("re-encolar %s: %w", e.ID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	uc.log.Info().Int("requeued", n).Str("error_kind", errorKind).Msg("envíos terminales re-encolados")
	if n > 0 {
		uc.notify()
	}
	return n, nil
}

// SubmitInvoice encola manualmente el envío de una factura emitida (scope submission).
// Solo abre una entrada nueva si la factura nunca se envió o todos sus envíos fueron
// rechazados por AGT. Una entrada pendiente, en vuelo o en error no rechazado devuelve
// domain.ErrConflict: se reanuda con Retry, que conserva la clave y los intentos.
func (uc *OpsUseCase) SubmitInvoice(ctx context.Context, key, invoiceID string) (*dto.SubmissionResponse, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(invoiceID); err != nil {
		return nil, domain.ErrNotFound
	}

	now := uc.now().UTC()
	entry := &entity.SubmissionEntry{
		ID:             uuid.New().String(),
		InvoiceID:      invoiceID,
		IdempotencyKey: key,
		Status:         entity.SubmissionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeSubmission, entry.ID); err != nil {
			return err
		}
		inv, err := r.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status == entity.InvoiceStatusRegistered {
			return fmt.Errorf("%w: la factura ya está registrada", domain.ErrConflict)
		}
		if inv.Status == entity.InvoiceStatusDraft {
			return fmt.Errorf("%w: la factura no ha sido emitida", domain.ErrConflict)
		}
		prev, err := r.Submissions.ListByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if blocking := blockingEntry(prev); blocking != nil {
			return fmt.Errorf("%w: la factura ya tiene el envío %s (%s); use POST /api/submissions/%s/retry",
				domain.ErrConflict, blocking.ID, describeEntry(blocking), blocking.ID)
		}
		return r.Submissions.Enqueue(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("submission_id", entry.ID).Str("invoice_id", invoiceID).Msg("envío manual encolado")
	uc.notify()
	out := dto.FromSubmission(entry)
	return &out, nil
}

// blockingEntry primera entrada que no es un éxito ni un rechazo de AGT.
func blockingEntry(entries []*entity.SubmissionEntry) *entity.SubmissionEntry {
	for _, e := range entries {
		if e.Status == entity.SubmissionStatusSuccess {
			continue
		}
		if e.Status == entity.SubmissionStatusError && e.ErrorKind == entity.SubmissionErrorRejected && !e.InFlight() {
			continue
		}
		return e
	}
	return nil
}

func describeEntry(e *entity.SubmissionEntry) string {
	switch {
	case e.InFlight():
		return "en vuelo"
	case e.Status == entity.SubmissionStatusPending:
		return "pendiente"
	case e.NextAttemptAt != nil:
		return "reintento programado"
	default:
		return "error " + e.ErrorKind
	}
}
