package entity

import "time"

// PendingRequest es una emisión que el cliente no pudo entregar al API y
// guardó localmente para reenviarla con la misma clave de idempotencia.
type PendingRequest struct {
	ID             int64 // autoincremental: define el orden de reenvío
	IdempotencyKey string
	SeriesID       string
	Payload        []byte
	CreatedAt      time.Time
	Attempts       int
	LastError      string
	LastAttemptAt  *time.Time
}
