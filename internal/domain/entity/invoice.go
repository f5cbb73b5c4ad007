package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Estados de la factura frente al registro AGT.
const (
	InvoiceStatusDraft      = "draft"
	InvoiceStatusIssued     = "issued"     // Emitida: número asignado, payload congelado
	InvoiceStatusRegistered = "registered" // Aceptada por el registro AGT
	InvoiceStatusRejected   = "rejected"   // Rechazada por el registro AGT (contenido inválido)
)

// Invoice representa la cabecera de un documento fiscal emitido.
// Number y Payload son inmutables una vez confirmada la emisión: la firma se calcula más tarde sobre Payload.
type Invoice struct {
	ID         string
	CompanyID  string
	SeriesID   string
	DocType    string
	Number     int64
	Status     string
	NetTotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrossTotal decimal.Decimal
	Payload    json.RawMessage // JSON canónico que se firma (bytes estables)
	Lines      []*InvoiceLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanTransitionTo indica si el cambio de estado es válido. Nunca se vuelve a issued ni a draft.
func (i *Invoice) CanTransitionTo(status string) bool {
	return InvoiceStatusAllowedFrom(status)[i.Status]
}

// InvoiceStatusAllowedFrom devuelve los estados desde los que se puede llegar a status.
func InvoiceStatusAllowedFrom(status string) map[string]bool {
	switch status {
	case InvoiceStatusIssued:
		return map[string]bool{InvoiceStatusDraft: true}
	case InvoiceStatusRegistered:
		// rejected -> registered solo ocurre tras un reintento explícito del operador
		return map[string]bool{InvoiceStatusIssued: true, InvoiceStatusRejected: true}
	case InvoiceStatusRejected:
		return map[string]bool{InvoiceStatusIssued: true}
	default:
		return map[string]bool{}
	}
}
