package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

type seriesRepo struct{ u unit }

func (r *seriesRepo) Create(ctx context.Context, s *entity.Series) error {
	return r.u.do(func(st *state) error {
		for _, other := range st.series {
			if other.CompanyID == s.CompanyID && other.Code == s.Code && other.DocType == s.DocType {
				return domain.ErrConflict
			}
		}
		st.series[s.ID] = *s
		return nil
	})
}

func (r *seriesRepo) get(id string) (*entity.Series, error) {
	var out *entity.Series
	err := r.u.do(func(st *state) error {
		if s, ok := st.series[id]; ok {
			out = &s
		}
		return nil
	})
	return out, err
}

func (r *seriesRepo) GetByID(ctx context.Context, id string) (*entity.Series, error) {
	return r.get(id)
}

// GetForUpdate: dentro de RunInTx el mutex del store ya serializa la transacción completa.
func (r *seriesRepo) GetForUpdate(ctx context.Context, id string) (*entity.Series, error) {
	return r.get(id)
}

func (r *seriesRepo) List(ctx context.Context, limit, offset int) ([]*entity.Series, error) {
	var out []*entity.Series
	err := r.u.do(func(st *state) error {
		all := make([]entity.Series, 0, len(st.series))
		for _, s := range st.series {
			all = append(all, s)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].Code != all[j].Code {
				return all[i].Code < all[j].Code
			}
			return all[i].DocType < all[j].DocType
		})
		for i := range all {
			if i < offset {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			s := all[i]
			out = append(out, &s)
		}
		return nil
	})
	return out, err
}

func (r *seriesRepo) Update(ctx context.Context, s *entity.Series) error {
	return r.u.do(func(st *state) error {
		if _, ok := st.series[s.ID]; !ok {
			return domain.ErrSeriesNotFound
		}
		for id, other := range st.series {
			if id != s.ID && other.CompanyID == s.CompanyID && other.Code == s.Code && other.DocType == s.DocType {
				return domain.ErrConflict
			}
		}
		st.series[s.ID] = *s
		return nil
	})
}

func (r *seriesRepo) SetNextNumber(ctx context.Context, id string, next int64, at time.Time) error {
	return r.u.do(func(st *state) error {
		s, ok := st.series[id]
		if !ok {
			return domain.ErrSeriesNotFound
		}
		s.NextNumber = next
		s.UpdatedAt = at
		st.series[id] = s
		return nil
	})
}
