package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound              = errors.New("recurso no encontrado")
	ErrInvalidInput          = errors.New("entrada inválida")
	ErrConflict              = errors.New("conflicto con el estado actual")
	ErrMissingIdempotencyKey = errors.New("falta el header X-Idempotency-Key")
	ErrDuplicateRequest      = errors.New("operación ya procesada")
	ErrSeriesNotFound        = errors.New("serie no encontrada")
	ErrSeriesInactive        = errors.New("serie inactiva")
	ErrClaimConflict         = errors.New("la entrada ya fue tomada por otro worker")
	ErrInvalidTransition     = errors.New("transición de estado no permitida")
)

// ValidationError describe qué campo del payload no es válido.
// errors.Is(err, ErrInvalidInput) es true para cualquier ValidationError.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "entrada inválida: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid construye un ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
