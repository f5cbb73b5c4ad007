package entity

import "time"

// Scopes de idempotencia (clases de operación protegidas).
const (
	IdempotencyScopeEmission   = "emission"
	IdempotencyScopeSeries     = "series"
	IdempotencyScopeSubmission = "submission"
	IdempotencyScopeRetry      = "retry"
)

// IdempotencyRecord es una marca permanente: una vez insertada no se actualiza ni se borra.
type IdempotencyRecord struct {
	Key        string
	Scope      string
	ResourceID string // opcional: entidad creada por la operación
	CreatedAt  time.Time
}
