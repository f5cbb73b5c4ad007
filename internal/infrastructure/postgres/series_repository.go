package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

var _ repository.SeriesRepository = (*SeriesRepo)(nil)

// SeriesRepo implementación de SeriesRepository (usable con pool o tx).
type SeriesRepo struct {
	q Querier
}

// NewSeriesRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSeriesRepository(q Querier) *SeriesRepo {
	return &SeriesRepo{q: q}
}

const seriesColumns = `id, company_id, code, doc_type, next_number, active, created_at, updated_at`

func scanSeries(row interface{ Scan(...any) error }) (*entity.Series, error) {
	var s entity.Series
	err := row.Scan(&s.ID, &s.CompanyID, &s.Code, &s.DocType, &s.NextNumber, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SeriesRepo) Create(ctx context.Context, s *entity.Series) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO series (`+seriesColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.CompanyID, s.Code, s.DocType, s.NextNumber, s.Active, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert series: %w", err)
	}
	return nil
}

func (r *SeriesRepo) get(ctx context.Context, query, id string) (*entity.Series, error) {
	s, err := scanSeries(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get series: %w", err)
	}
	return s, nil
}

func (r *SeriesRepo) GetByID(ctx context.Context, id string) (*entity.Series, error) {
	return r.get(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = $1`, id)
}

// GetForUpdate bloquea la fila hasta el fin de la transacción (SELECT FOR UPDATE).
func (r *SeriesRepo) GetForUpdate(ctx context.Context, id string) (*entity.Series, error) {
	return r.get(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = $1 FOR UPDATE`, id)
}

func (r *SeriesRepo) List(ctx context.Context, limit, offset int) ([]*entity.Series, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+seriesColumns+` FROM series
		ORDER BY code, doc_type
		LIMIT NULLIF($1::int, 0) OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []*entity.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SeriesRepo) Update(ctx context.Context, s *entity.Series) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE series
		SET code = $2, next_number = $3, active = $4, updated_at = $5
		WHERE id = $1`,
		s.ID, s.Code, s.NextNumber, s.Active, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("update series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSeriesNotFound
	}
	return nil
}

func (r *SeriesRepo) SetNextNumber(ctx context.Context, id string, next int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE series SET next_number = $2, updated_at = $3 WHERE id = $1`, id, next, at)
	if err != nil {
		return fmt.Errorf("set next number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSeriesNotFound
	}
	return nil
}
