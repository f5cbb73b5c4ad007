package dto

import (
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromInvoice mapea la factura (con sus líneas) a la respuesta HTTP.
func FromInvoice(inv *entity.Invoice) InvoiceResponse {
	out := InvoiceResponse{
		ID:        inv.ID,
		CompanyID: inv.CompanyID,
		SeriesID:  inv.SeriesID,
		DocType:   inv.DocType,
		Number:    inv.Number,
		Status:    inv.Status,
		Totals: TotalsResponse{
			Net:   inv.NetTotal.StringFixed(2),
			Tax:   inv.TaxTotal.StringFixed(2),
			Gross: inv.GrossTotal.StringFixed(2),
		},
		Payload:   inv.Payload,
		Lines:     make([]InvoiceLineResponse, 0, len(inv.Lines)),
		CreatedAt: formatTime(inv.CreatedAt),
		UpdatedAt: formatTime(inv.UpdatedAt),
	}
	for _, l := range inv.Lines {
		out.Lines = append(out.Lines, InvoiceLineResponse{
			ID:          l.ID,
			LineNo:      l.LineNo,
			Description: l.Description,
			Qty:         l.Qty.String(),
			UnitPrice:   l.UnitPrice.String(),
			TaxRate:     l.TaxRate.String(),
			LineNet:     l.LineNet.StringFixed(2),
			LineTax:     l.LineTax.StringFixed(2),
			LineTotal:   l.LineTotal.StringFixed(2),
		})
	}
	return out
}

// FromSeries mapea una serie.
func FromSeries(s *entity.Series) SeriesResponse {
	return SeriesResponse{
		ID:         s.ID,
		CompanyID:  s.CompanyID,
		Code:       s.Code,
		DocType:    s.DocType,
		NextNumber: s.NextNumber,
		Active:     s.Active,
		CreatedAt:  formatTime(s.CreatedAt),
		UpdatedAt:  formatTime(s.UpdatedAt),
	}
}

// FromSubmission mapea una entrada de la cola.
func FromSubmission(e *entity.SubmissionEntry) SubmissionResponse {
	return SubmissionResponse{
		ID:             e.ID,
		InvoiceID:      e.InvoiceID,
		IdempotencyKey: e.IdempotencyKey,
		Status:         e.Status,
		Attempts:       e.Attempts,
		InFlight:       e.InFlight(),
		Terminal:       e.IsTerminal(),
		LastAttemptAt:  formatTimePtr(e.LastAttemptAt),
		NextAttemptAt:  formatTimePtr(e.NextAttemptAt),
		Request:        e.Request,
		Response:       e.Response,
		Error:          e.Error,
		ErrorKind:      e.ErrorKind,
		CreatedAt:      formatTime(e.CreatedAt),
		UpdatedAt:      formatTime(e.UpdatedAt),
	}
}

// FromSubmissions mapea una lista de entradas.
func FromSubmissions(entries []*entity.SubmissionEntry) []SubmissionResponse {
	out := make([]SubmissionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromSubmission(e))
	}
	return out
}
