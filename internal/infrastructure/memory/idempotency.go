package memory

import (
	"context"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

type idempotencyRepo struct{ u unit }

func (r *idempotencyRepo) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.u.do(func(st *state) error {
		_, ok = st.keys[key]
		return nil
	})
	return ok, err
}

func (r *idempotencyRepo) Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (bool, error) {
	var inserted bool
	err := r.u.do(func(st *state) error {
		if _, ok := st.keys[rec.Key]; ok {
			return nil
		}
		st.keys[rec.Key] = *rec
		inserted = true
		return nil
	})
	return inserted, err
}
