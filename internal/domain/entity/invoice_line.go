package entity

import "github.com/shopspring/decimal"

// InvoiceLine representa una línea de detalle de una factura.
type InvoiceLine struct {
	ID          string
	InvoiceID   string
	LineNo      int
	Description string
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	LineNet     decimal.Decimal
	LineTax     decimal.Decimal
	LineTotal   decimal.Decimal
}
