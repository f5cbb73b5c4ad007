// Package memory implementa los puertos de repositorio en memoria.
// Se usa en tests y con STORAGE_DRIVER=memory (desarrollo sin Postgres).
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

type state struct {
	keys        map[string]entity.IdempotencyRecord
	series      map[string]entity.Series
	invoices    map[string]entity.Invoice
	lines       map[string][]entity.InvoiceLine
	submissions map[string]entity.SubmissionEntry
	subOrder    []string
}

func newState() *state {
	return &state{
		keys:        map[string]entity.IdempotencyRecord{},
		series:      map[string]entity.Series{},
		invoices:    map[string]entity.Invoice{},
		lines:       map[string][]entity.InvoiceLine{},
		submissions: map[string]entity.SubmissionEntry{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.keys {
		c.keys[k] = v
	}
	for k, v := range s.series {
		c.series[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]entity.InvoiceLine(nil), v...)
	}
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	c.subOrder = append([]string(nil), s.subOrder...)
	return c
}

// Store guarda todo el estado tras un único mutex. Una transacción toma el mutex
// durante toda su duración y trabaja sobre una copia que solo se publica al confirmar.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New crea un store vacío.
func New() *Store {
	return &Store{state: newState()}
}

// unit es la unidad de trabajo sobre la que operan los repositorios:
// tx != nil dentro de RunInTx (el mutex ya está tomado).
type unit struct {
	store *Store
	tx    *state
}

func (u unit) do(fn func(st *state) error) error {
	if u.tx != nil {
		return fn(u.tx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(u.store.state)
}

func (u unit) repos() repository.Repos {
	return repository.Repos{
		Idempotency: &idempotencyRepo{u},
		Series:      &seriesRepo{u},
		Invoices:    &invoiceRepo{u},
		Submissions: &submissionRepo{u},
	}
}

// Repos devuelve repositorios fuera de transacción (cada llamada es atómica por sí sola).
func (s *Store) Repos() repository.Repos {
	return unit{store: s}.repos()
}

// RunInTx ejecuta fn con repositorios transaccionales. Si fn devuelve error nada se publica.
func (s *Store) RunInTx(ctx context.Context, fn func(repos repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.state.clone()
	if err := fn(unit{store: s, tx: tx}.repos()); err != nil {
		return err
	}
	s.state = tx
	return nil
}
