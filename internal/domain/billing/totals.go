package billing

import (
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Totals totales de la factura, redondeados a 2 decimales.
type Totals struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Gross decimal.Decimal
}

// ComputeTotals suma los importes ya calculados por línea (servicio de dominio).
// El cliente envía lineNet/lineTax/lineTotal; el servidor no recalcula precios, solo agrega.
func ComputeTotals(lines []*entity.InvoiceLine) Totals {
	var t Totals
	for _, l := range lines {
		t.Net = t.Net.Add(l.LineNet)
		t.Tax = t.Tax.Add(l.LineTax)
		t.Gross = t.Gross.Add(l.LineTotal)
	}
	t.Net = t.Net.Round(2)
	t.Tax = t.Tax.Round(2)
	t.Gross = t.Gross.Round(2)
	return t
}
