package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// IssueInvoiceRequest body para POST /api/invoices/issue.
type IssueInvoiceRequest struct {
	SeriesID    string             `json:"seriesId"`
	CompanyID   string             `json:"companyId"`
	DocType     string             `json:"docType"`
	Customer    json.RawMessage    `json:"customer"` // objeto libre; se congela tal cual en el payload
	Lines       []IssueLineRequest `json:"lines"`
	SubmitToAgt bool               `json:"submitToAgt,omitempty"`
}

// IssueLineRequest línea enviada por el cliente. Los importes de línea los calcula el cliente;
// el servidor solo suma y redondea los totales.
type IssueLineRequest struct {
	Description string              `json:"description"`
	Qty         decimal.Decimal     `json:"qty"`
	UnitPrice   decimal.Decimal     `json:"unitPrice"`
	TaxRate     decimal.NullDecimal `json:"taxRate"`
	LineNet     decimal.Decimal     `json:"lineNet"`
	LineTax     decimal.Decimal     `json:"lineTax"`
	LineTotal   decimal.Decimal     `json:"lineTotal"`
}

// TotalsResponse importes con 2 decimales fijos.
type TotalsResponse struct {
	Net   string `json:"net"`
	Tax   string `json:"tax"`
	Gross string `json:"gross"`
}

// InvoiceLineResponse línea en la respuesta.
type InvoiceLineResponse struct {
	ID          string `json:"id"`
	LineNo      int    `json:"lineNo"`
	Description string `json:"description"`
	Qty         string `json:"qty"`
	UnitPrice   string `json:"unitPrice"`
	TaxRate     string `json:"taxRate"`
	LineNet     string `json:"lineNet"`
	LineTax     string `json:"lineTax"`
	LineTotal   string `json:"lineTotal"`
}

// InvoiceResponse factura persistida (201 en emisión, GET /api/invoices/:id).
type InvoiceResponse struct {
	ID          string                `json:"id"`
	CompanyID   string                `json:"companyId"`
	SeriesID    string                `json:"seriesId"`
	DocType     string                `json:"docType"`
	Number      int64                 `json:"number"`
	Status      string                `json:"status"`
	Totals      TotalsResponse        `json:"totals"`
	Payload     json.RawMessage       `json:"payload"`
	Lines       []InvoiceLineResponse `json:"lines"`
	Submissions []SubmissionResponse  `json:"submissions,omitempty"`
	// SubmissionScheduled true si la emisión dejó un envío pendiente al registro.
	SubmissionScheduled bool   `json:"submissionScheduled"`
	CreatedAt           string `json:"createdAt"`
	UpdatedAt           string `json:"updatedAt"`
}
