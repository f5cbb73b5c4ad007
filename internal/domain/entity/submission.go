package entity

import "time"

// Estados de una entrada de la cola de envíos al registro AGT.
const (
	SubmissionStatusPending = "pending"
	SubmissionStatusSuccess = "success"
	SubmissionStatusError   = "error"
)

// Tipos de error registrados en la entrada (para el centro de errores y métricas).
const (
	SubmissionErrorTransient       = "transient"
	SubmissionErrorRejected        = "rejected"
	SubmissionErrorSigner          = "signer"
	SubmissionErrorInvoiceNotFound = "invoice_not_found"
	SubmissionErrorExhausted       = "exhausted"
)

// SubmissionEntry es una fila de la cola de envíos. Solo el worker la modifica.
// Un reintento reutiliza la fila e incrementa Attempts; nunca se borra.
type SubmissionEntry struct {
	ID             string
	InvoiceID      string
	IdempotencyKey string
	Status         string
	Attempts       int
	LastAttemptAt  *time.Time
	NextAttemptAt  *time.Time // nil en error = terminal, requiere acción del operador
	ClaimedAt      *time.Time // no nil = en vuelo
	ClaimToken     string
	Request        string // payload firmado truncado (auditoría)
	Response       string // cuerpo crudo de la respuesta del registro
	Error          string
	ErrorKind      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal indica que la entrada ya no se reintentará automáticamente.
func (s *SubmissionEntry) IsTerminal() bool {
	if s.Status == SubmissionStatusSuccess {
		return true
	}
	return s.Status == SubmissionStatusError && s.NextAttemptAt == nil
}

// InFlight indica que un worker tiene la entrada tomada.
func (s *SubmissionEntry) InFlight() bool {
	return s.ClaimedAt != nil
}

// IsDue indica si la entrada puede ser tomada por un worker en el instante now.
func (s *SubmissionEntry) IsDue(now time.Time) bool {
	if s.ClaimedAt != nil {
		return false
	}
	switch s.Status {
	case SubmissionStatusPending:
		return true
	case SubmissionStatusError:
		return s.NextAttemptAt != nil && !s.NextAttemptAt.After(now)
	default:
		return false
	}
}
