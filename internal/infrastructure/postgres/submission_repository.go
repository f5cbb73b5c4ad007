package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

// SubmissionRepo cola de envíos sobre submission_entries. Las transiciones son
// UPDATE condicionales; el índice único parcial submission_entries_one_in_flight
// impide dos entradas en vuelo para la misma factura.
type SubmissionRepo struct {
	q Querier
}

// NewSubmissionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubmissionRepository(q Querier) *SubmissionRepo {
	return &SubmissionRepo{q: q}
}

const submissionColumns = `id, invoice_id, idempotency_key, status, attempts, last_attempt_at, next_attempt_at,
	claimed_at, claim_token, request, response, error, error_kind, created_at, updated_at`

// dueCondition: pending, o error con reintento vencido, y sin claim.
const dueCondition = `claimed_at IS NULL AND (status = 'pending'
	OR (status = 'error' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1))`

func scanSubmission(row interface{ Scan(...any) error }) (*entity.SubmissionEntry, error) {
	var (
		e                                         entity.SubmissionEntry
		token, request, response, errMsg, errKind *string
	)
	err := row.Scan(&e.ID, &e.InvoiceID, &e.IdempotencyKey, &e.Status, &e.Attempts,
		&e.LastAttemptAt, &e.NextAttemptAt, &e.ClaimedAt, &token,
		&request, &response, &errMsg, &errKind, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ClaimToken = derefString(token)
	e.Request = derefString(request)
	e.Response = derefString(response)
	e.Error = derefString(errMsg)
	e.ErrorKind = derefString(errKind)
	return &e, nil
}

func (r *SubmissionRepo) list(ctx context.Context, query string, args ...any) ([]*entity.SubmissionEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*entity.SubmissionEntry
	for rows.Next() {
		e, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SubmissionRepo) Enqueue(ctx context.Context, e *entity.SubmissionEntry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO submission_entries (id, invoice_id, idempotency_key, status, attempts,
			next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.InvoiceID, e.IdempotencyKey, e.Status, e.Attempts, e.NextAttemptAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("enqueue submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*entity.SubmissionEntry, error) {
	e, err := scanSubmission(r.q.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submission_entries WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return e, nil
}

func (r *SubmissionRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.SubmissionEntry, error) {
	return r.list(ctx, `
		SELECT `+submissionColumns+` FROM submission_entries
		WHERE invoice_id = $1 ORDER BY created_at, id`, invoiceID)
}

// ListByStatus con status vacío lista todas.
func (r *SubmissionRepo) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.SubmissionEntry, error) {
	return r.list(ctx, `
		SELECT `+submissionColumns+` FROM submission_entries
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at, id
		LIMIT NULLIF($2::int, 0) OFFSET $3`, status, limit, offset)
}

func (r *SubmissionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.SubmissionEntry, error) {
	return r.list(ctx, `
		SELECT `+submissionColumns+` FROM submission_entries
		WHERE `+dueCondition+`
		ORDER BY created_at, id
		LIMIT NULLIF($2::int, 0)`, now, limit)
}

func (r *SubmissionRepo) CountDue(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM submission_entries WHERE `+dueCondition, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count due submissions: %w", err)
	}
	return n, nil
}

// Claim es un UPDATE condicional: solo uno de los workers que compiten obtiene la fila.
// El perdedor recibe 0 filas (otro ganó esta entrada) o 23505 (otra entrada de la misma factura está en vuelo).
func (r *SubmissionRepo) Claim(ctx context.Context, id, token string, now time.Time) (*entity.SubmissionEntry, error) {
	e, err := scanSubmission(r.q.QueryRow(ctx, `
		UPDATE submission_entries
		SET claimed_at = $1, claim_token = $3, updated_at = $1
		WHERE id = $2 AND `+dueCondition+`
		RETURNING `+submissionColumns, now, id, token))
	if err == nil {
		return e, nil
	}
	if isUniqueViolation(err) {
		return nil, domain.ErrClaimConflict
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("claim submission: %w", err)
	}
	current, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrClaimConflict
}

func (r *SubmissionRepo) RecordAttempt(ctx context.Context, id, token string, attempts int, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE submission_entries
		SET attempts = $3, last_attempt_at = $4, updated_at = $4
		WHERE id = $1 AND claim_token = $2 AND claimed_at IS NOT NULL`, id, token, attempts, at)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimConflict
	}
	return nil
}

// Complete escribe el resultado y libera el claim solo si el token sigue siendo el del worker.
func (r *SubmissionRepo) Complete(ctx context.Context, e *entity.SubmissionEntry, token string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE submission_entries
		SET status = $3, attempts = $4, last_attempt_at = $5, next_attempt_at = $6,
		    request = $7, response = $8, error = $9, error_kind = $10,
		    claimed_at = NULL, claim_token = NULL, updated_at = $11
		WHERE id = $1 AND claim_token = $2 AND claimed_at IS NOT NULL`,
		e.ID, token, e.Status, e.Attempts, e.LastAttemptAt, e.NextAttemptAt,
		nullIfEmpty(e.Request), nullIfEmpty(e.Response), nullIfEmpty(e.Error), nullIfEmpty(e.ErrorKind),
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimConflict
	}
	return nil
}

// Requeue vuelve a pending una entrada en error que no está en vuelo. attempts no se toca.
func (r *SubmissionRepo) Requeue(ctx context.Context, id string, now time.Time) (*entity.SubmissionEntry, error) {
	e, err := scanSubmission(r.q.QueryRow(ctx, `
		UPDATE submission_entries
		SET status = 'pending', next_attempt_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'error' AND claimed_at IS NULL
		RETURNING `+submissionColumns, id, now))
	if err == nil {
		return e, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("requeue submission: %w", err)
	}
	current, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrInvalidTransition
}

func (r *SubmissionRepo) ReleaseStale(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE submission_entries
		SET claimed_at = NULL, claim_token = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
