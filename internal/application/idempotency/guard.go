package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// MaxKeyLength tamaño de la columna idempotency_keys.key.
const MaxKeyLength = 190

// Outcome resultado de CheckAndReserve.
type Outcome int

const (
	// Fresh la clave no existía y quedó reservada: la operación puede continuar.
	Fresh Outcome = iota
	// Duplicate la clave ya existía: la operación no debe ejecutarse.
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "fresh"
}

// Guard decide si una petición mutante ya fue procesada.
type Guard struct {
	repo repository.IdempotencyRepository
	now  func() time.Time
}

// NewGuard crea el guard con el repositorio fuera de transacción (para Seen).
func NewGuard(repo repository.IdempotencyRepository) *Guard {
	return &Guard{repo: repo, now: time.Now}
}

// NormalizeKey valida la clave recibida en el header.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrMissingIdempotencyKey
	}
	if len(key) > MaxKeyLength {
		return "", domain.Invalid("X-Idempotency-Key", fmt.Sprintf("supera %d caracteres", MaxKeyLength))
	}
	return key, nil
}

// Seen consulta sin reservar. Es solo un atajo: la reserva dentro de la transacción sigue siendo la que decide.
func (g *Guard) Seen(ctx context.Context, key string) (bool, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return false, err
	}
	ok, err := g.repo.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("idempotency: consultar clave: %w", err)
	}
	return ok, nil
}

// CheckAndReserve inserta (key, scope) si no existe, usando repo, que debe ser el repositorio
// de la misma transacción que la operación protegida: clave y primera escritura se confirman
// o se revierten juntas. repo nil usa el repositorio del guard.
func (g *Guard) CheckAndReserve(ctx context.Context, repo repository.IdempotencyRepository, key, scope, resourceID string) (Outcome, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Duplicate, err
	}
	if repo == nil {
		repo = g.repo
	}
	inserted, err := repo.Reserve(ctx, &entity.IdempotencyRecord{
		Key:        key,
		Scope:      scope,
		ResourceID: resourceID,
		CreatedAt:  g.now().UTC(),
	})
	if err != nil {
		return Duplicate, fmt.Errorf("idempotency: reservar clave: %w", err)
	}
	if !inserted {
		return Duplicate, nil
	}
	return Fresh, nil
}

// Reserve es CheckAndReserve traducido a error: Duplicate -> domain.ErrDuplicateRequest.
func (g *Guard) Reserve(ctx context.Context, repo repository.IdempotencyRepository, key, scope, resourceID string) error {
	out, err := g.CheckAndReserve(ctx, repo, key, scope, resourceID)
	if err != nil {
		return err
	}
	if out == Duplicate {
		return domain.ErrDuplicateRequest
	}
	return nil
}
