package repository

// Repos agrupa los repositorios atados a una misma unidad de trabajo (pool o transacción).
type Repos struct {
	Idempotency IdempotencyRepository
	Series      SeriesRepository
	Invoices    InvoiceRepository
	Submissions SubmissionRepository
}
