package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

var (
	_ billing.TxRunner    = (*TxRunner)(nil)
	_ submission.TxRunner = (*TxRunner)(nil)
)

// NewRepos construye los repositorios sobre q (pool o tx).
func NewRepos(q Querier) repository.Repos {
	return repository.Repos{
		Idempotency: NewIdempotencyRepository(q),
		Series:      NewSeriesRepository(q),
		Invoices:    NewInvoiceRepository(q),
		Submissions: NewSubmissionRepository(q),
	}
}

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx inicia una transacción READ COMMITTED, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
// El bloqueo de la serie (SELECT ... FOR UPDATE) es lo que serializa las emisiones concurrentes.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(repos repository.Repos) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
