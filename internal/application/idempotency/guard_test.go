package idempotency_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/memory"
)

func TestCheckAndReserve_PrimeraVezFreshLuegoDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	g := idempotency.NewGuard(store.Repos().Idempotency)

	out, err := g.CheckAndReserve(ctx, nil, "k-1", entity.IdempotencyScopeEmission, "")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Fresh, out)

	out, err = g.CheckAndReserve(ctx, nil, "k-1", entity.IdempotencyScopeSeries, "")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Duplicate, out, "la clave es única entre scopes")

	seen, err := g.Seen(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCheckAndReserve_ClaveVacia(t *testing.T) {
	g := idempotency.NewGuard(memory.New().Repos().Idempotency)

	_, err := g.CheckAndReserve(context.Background(), nil, "   ", entity.IdempotencyScopeEmission, "")
	assert.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)

	_, err = g.Seen(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)
}

func TestCheckAndReserve_ClaveDemasiadoLarga(t *testing.T) {
	g := idempotency.NewGuard(memory.New().Repos().Idempotency)

	_, err := g.CheckAndReserve(context.Background(), nil, strings.Repeat("x", idempotency.MaxKeyLength+1), entity.IdempotencyScopeEmission, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheckAndReserve_ConcurrenteSoloUnFresh(t *testing.T) {
	ctx := context.Background()
	g := idempotency.NewGuard(memory.New().Repos().Idempotency)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := g.CheckAndReserve(ctx, nil, "k-race", entity.IdempotencyScopeEmission, "")
			assert.NoError(t, err)
			if out == idempotency.Fresh {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}

func TestReserve_TransaccionFallidaNoConsumeLaClave(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	g := idempotency.NewGuard(store.Repos().Idempotency)
	boom := errors.New("fallo dentro de la transacción")

	err := store.RunInTx(ctx, func(r repository.Repos) error {
		require.NoError(t, g.Reserve(ctx, r.Idempotency, "k-tx", entity.IdempotencyScopeEmission, ""))
		return boom
	})
	require.ErrorIs(t, err, boom)

	seen, err := g.Seen(ctx, "k-tx")
	require.NoError(t, err)
	assert.False(t, seen)

	err = store.RunInTx(ctx, func(r repository.Repos) error {
		return g.Reserve(ctx, r.Idempotency, "k-tx", entity.IdempotencyScopeEmission, "")
	})
	assert.NoError(t, err)

	err = store.RunInTx(ctx, func(r repository.Repos) error {
		return g.Reserve(ctx, r.Idempotency, "k-tx", entity.IdempotencyScopeEmission, "")
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
}
