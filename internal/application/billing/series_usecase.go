package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

const (
	maxSeriesCodeLength = 20
	maxDocTypeLength    = 4
)

// SeriesUseCase administra las series de numeración.
type SeriesUseCase struct {
	tx    TxRunner
	repos repository.Repos
	guard *idempotency.Guard
	log   zerolog.Logger
	now   func() time.Time
}

// NewSeriesUseCase construye el caso de uso.
func NewSeriesUseCase(tx TxRunner, repos repository.Repos, guard *idempotency.Guard, log zerolog.Logger) *SeriesUseCase {
	return &SeriesUseCase{tx: tx, repos: repos, guard: guard, log: log, now: time.Now}
}

// List devuelve las series paginadas.
func (uc *SeriesUseCase) List(ctx context.Context, page dto.PageRequest) ([]dto.SeriesResponse, error) {
	page.DefaultPage()
	list, err := uc.repos.Series.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SeriesResponse, 0, len(list))
	for _, s := range list {
		out = append(out, dto.FromSeries(s))
	}
	return out, nil
}

// Create crea la serie protegida por key (scope series).
func (uc *SeriesUseCase) Create(ctx context.Context, key string, in dto.CreateSeriesRequest) (*dto.SeriesResponse, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.Code)
	docType := strings.ToUpper(strings.TrimSpace(in.DocType))
	if strings.TrimSpace(in.CompanyID) == "" {
		return nil, domain.Invalid("companyId", "es obligatorio")
	}
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if docType == "" || len(docType) > maxDocTypeLength {
		return nil, domain.Invalid("docType", "entre 1 y 4 caracteres")
	}
	if in.NextNumber < 0 {
		return nil, domain.Invalid("nextNumber", "debe ser >= 1")
	}

	now := uc.now().UTC()
	s := &entity.Series{
		ID:         uuid.New().String(),
		CompanyID:  strings.TrimSpace(in.CompanyID),
		Code:       code,
		DocType:    docType,
		NextNumber: in.NextNumber,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.NextNumber == 0 {
		s.NextNumber = 1
	}
	if in.Active != nil {
		s.Active = *in.Active
	}

	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeSeries, s.ID); err != nil {
			return err
		}
		return r.Series.Create(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("series_id", s.ID).Str("code", s.Code).Str("doc_type", s.DocType).Msg("serie creada")
	out := dto.FromSeries(s)
	return &out, nil
}

// Update aplica cambios parciales. nextNumber nunca puede quedar en o por debajo de un número ya emitido.
func (uc *SeriesUseCase) Update(ctx context.Context, key, id string, in dto.UpdateSeriesRequest) (*dto.SeriesResponse, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrSeriesNotFound
	}

	var updated *entity.Series
	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeSeries, id); err != nil {
			return err
		}
		s, err := r.Series.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return domain.ErrSeriesNotFound
		}
		if in.Code != nil {
			code := strings.TrimSpace(*in.Code)
			if err := validateCode(code); err != nil {
				return err
			}
			s.Code = code
		}
		if in.Active != nil {
			s.Active = *in.Active
		}
		if in.NextNumber != nil {
			if *in.NextNumber < 1 {
				return domain.Invalid("nextNumber", "debe ser >= 1")
			}
			issued, err := r.Invoices.MaxNumber(ctx, id)
			if err != nil {
				return fmt.Errorf("consultar último número: %w", err)
			}
			if *in.NextNumber <= issued {
				return domain.Invalid("nextNumber", fmt.Sprintf("debe ser mayor que el último número emitido (%d)", issued))
			}
			s.NextNumber = *in.NextNumber
		}
		s.UpdatedAt = uc.now().UTC()
		if err := r.Series.Update(ctx, s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("series_id", updated.ID).Int64("next_number", updated.NextNumber).Bool("active", updated.Active).Msg("serie actualizada")
	out := dto.FromSeries(updated)
	return &out, nil
}

func validateCode(code string) error {
	if code == "" || len(code) > maxSeriesCodeLength {
		return domain.Invalid("code", "entre 1 y 20 caracteres")
	}
	return nil
}
