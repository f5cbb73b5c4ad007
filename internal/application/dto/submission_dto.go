package dto

// SubmissionResponse entrada de la cola de envíos (centro de errores).
type SubmissionResponse struct {
	ID             string `json:"id"`
	InvoiceID      string `json:"invoiceId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	InFlight       bool   `json:"inFlight"`
	Terminal       bool   `json:"terminal"`
	LastAttemptAt  string `json:"lastAttemptAt,omitempty"`
	NextAttemptAt  string `json:"nextAttemptAt,omitempty"`
	Request        string `json:"request,omitempty"`
	Response       string `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// SubmissionListResponse listado paginado.
type SubmissionListResponse struct {
	Items []SubmissionResponse `json:"items"`
	Page  PageResponse         `json:"page"`
}

// RetryFailedRequest body opcional de POST /api/submissions/retry-failed.
type RetryFailedRequest struct {
	ErrorKind string `json:"errorKind,omitempty"` // vacío = todas las terminales
}

// RetryFailedResponse cuántas entradas volvieron a pending.
type RetryFailedResponse struct {
	Requeued int `json:"requeued"`
}
