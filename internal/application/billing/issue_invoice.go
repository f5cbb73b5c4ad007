package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/domain"
	domainbilling "github.com/jhoicas/efactura-agt/internal/domain/billing"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
	"github.com/jhoicas/efactura-agt/pkg/agt"
)

const maxDescriptionLength = 255

// IssueInvoiceUseCase emite facturas: número, líneas, totales y envío pendiente en una sola transacción.
type IssueInvoiceUseCase struct {
	tx       TxRunner
	repos    repository.Repos
	guard    *idempotency.Guard
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewIssueInvoiceUseCase construye el caso de uso. notifier puede ser nil (sin worker embebido).
func NewIssueInvoiceUseCase(tx TxRunner, repos repository.Repos, guard *idempotency.Guard, notifier Notifier, log zerolog.Logger) *IssueInvoiceUseCase {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &IssueInvoiceUseCase{
		tx:       tx,
		repos:    repos,
		guard:    guard,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Issue emite la factura protegida por key (scope emission).
// Devuelve domain.ErrDuplicateRequest si la clave ya fue usada.
func (uc *IssueInvoiceUseCase) Issue(ctx context.Context, key string, in dto.IssueInvoiceRequest) (*dto.InvoiceResponse, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	if err := validateIssue(in); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	invoiceID := uuid.New().String()
	var (
		inv       *entity.Invoice
		scheduled bool
	)

	err = uc.tx.RunInTx(ctx, func(r repository.Repos) error {
		// 1) Clave de idempotencia en la misma transacción que la primera escritura.
		if err := uc.guard.Reserve(ctx, r.Idempotency, key, entity.IdempotencyScopeEmission, invoiceID); err != nil {
			return err
		}

		// 2) Bloqueo de la fila de la serie hasta el commit.
		series, err := r.Series.GetForUpdate(ctx, in.SeriesID)
		if err != nil {
			return fmt.Errorf("bloquear serie: %w", err)
		}
		if series == nil {
			return domain.ErrSeriesNotFound
		}
		if !series.Active {
			return domain.ErrSeriesInactive
		}
		if in.CompanyID != "" && in.CompanyID != series.CompanyID {
			return domain.Invalid("companyId", "no corresponde a la serie")
		}
		if in.DocType != "" && !strings.EqualFold(in.DocType, series.DocType) {
			return domain.Invalid("docType", "no corresponde a la serie")
		}

		number := series.NextNumber
		lines := buildLines(invoiceID, in.Lines)
		totals := domainbilling.ComputeTotals(lines)

		payload, err := buildPayload(invoiceID, series, number, in, lines, totals, now)
		if err != nil {
			return err
		}

		inv = &entity.Invoice{
			ID:         invoiceID,
			CompanyID:  series.CompanyID,
			SeriesID:   series.ID,
			DocType:    series.DocType,
			Number:     number,
			Status:     entity.InvoiceStatusIssued,
			NetTotal:   totals.Net,
			TaxTotal:   totals.Tax,
			GrossTotal: totals.Gross,
			Payload:    payload,
			Lines:      lines,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := r.Invoices.Create(ctx, inv); err != nil {
			return fmt.Errorf("crear factura: %w", err)
		}
		for _, l := range lines {
			if err := r.Invoices.CreateLine(ctx, l); err != nil {
				return fmt.Errorf("crear línea %d: %w", l.LineNo, err)
			}
		}
		if err := r.Series.SetNextNumber(ctx, series.ID, number+1, now); err != nil {
			return fmt.Errorf("incrementar serie: %w", err)
		}

		// 3) Envío al registro: la misma clave viaja hasta AGT.
		if in.SubmitToAgt {
			if err := r.Submissions.Enqueue(ctx, &entity.SubmissionEntry{
				ID:             uuid.New().String(),
				InvoiceID:      invoiceID,
				IdempotencyKey: key,
				Status:         entity.SubmissionStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return fmt.Errorf("encolar envío: %w", err)
			}
			scheduled = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if scheduled {
		uc.notifier.Notify()
	}
	uc.log.Info().
		Str("invoice_id", inv.ID).
		Str("series_id", inv.SeriesID).
		Int64("number", inv.Number).
		Bool("submission_scheduled", scheduled).
		Msg("factura emitida")

	out := dto.FromInvoice(inv)
	out.SubmissionScheduled = scheduled
	return &out, nil
}

// GetInvoice devuelve la factura con líneas y el historial de envíos.
func (uc *IssueInvoiceUseCase) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := uc.repos.Invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.Lines, err = uc.repos.Invoices.GetLines(ctx, id); err != nil {
		return nil, err
	}
	subs, err := uc.repos.Submissions.ListByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	out := dto.FromInvoice(inv)
	out.Submissions = dto.FromSubmissions(subs)
	for _, s := range subs {
		if !s.IsTerminal() {
			out.SubmissionScheduled = true
			break
		}
	}
	return &out, nil
}

// ── validación ──────────────────────────────────────────────────────────────

func validateIssue(in dto.IssueInvoiceRequest) error {
	if strings.TrimSpace(in.SeriesID) == "" {
		return domain.Invalid("seriesId", "es obligatorio")
	}
	if _, err := uuid.Parse(in.SeriesID); err != nil {
		return domain.ErrSeriesNotFound
	}
	customer := bytes.TrimSpace(in.Customer)
	if len(customer) == 0 || customer[0] != '{' || !json.Valid(customer) {
		return domain.Invalid("customer", "debe ser un objeto")
	}
	if len(in.Lines) == 0 {
		return domain.Invalid("lines", "al menos una línea")
	}
	for i, l := range in.Lines {
		field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }
		desc := strings.TrimSpace(l.Description)
		if desc == "" {
			return domain.Invalid(field("description"), "es obligatorio")
		}
		if len([]rune(desc)) > maxDescriptionLength {
			return domain.Invalid(field("description"), "máximo 255 caracteres")
		}
		amounts := []struct {
			name  string
			value decimal.Decimal
		}{
			{"qty", l.Qty},
			{"unitPrice", l.UnitPrice},
			{"lineNet", l.LineNet},
			{"lineTax", l.LineTax},
			{"lineTotal", l.LineTotal},
		}
		for _, a := range amounts {
			if a.value.IsNegative() {
				return domain.Invalid(field(a.name), "no puede ser negativo")
			}
		}
		if l.TaxRate.Valid && l.TaxRate.Decimal.IsNegative() {
			return domain.Invalid(field("taxRate"), "no puede ser negativo")
		}
	}
	return nil
}

// ── construcción ────────────────────────────────────────────────────────────

func buildLines(invoiceID string, in []dto.IssueLineRequest) []*entity.InvoiceLine {
	lines := make([]*entity.InvoiceLine, 0, len(in))
	for i, l := range in {
		rate := decimal.Zero
		if l.TaxRate.Valid {
			rate = l.TaxRate.Decimal
		}
		lines = append(lines, &entity.InvoiceLine{
			ID:          uuid.New().String(),
			InvoiceID:   invoiceID,
			LineNo:      i + 1,
			Description: strings.TrimSpace(l.Description),
			Qty:         l.Qty,
			UnitPrice:   l.UnitPrice,
			TaxRate:     rate,
			LineNet:     l.LineNet,
			LineTax:     l.LineTax,
			LineTotal:   l.LineTotal,
		})
	}
	return lines
}

type payloadLine struct {
	LineNo      int    `json:"lineNo"`
	Description string `json:"description"`
	Qty         string `json:"qty"`
	UnitPrice   string `json:"unitPrice"`
	TaxRate     string `json:"taxRate"`
	LineNet     string `json:"lineNet"`
	LineTax     string `json:"lineTax"`
	LineTotal   string `json:"lineTotal"`
}

type payloadDoc struct {
	InvoiceID  string             `json:"invoiceId"`
	CompanyID  string             `json:"companyId"`
	SeriesID   string             `json:"seriesId"`
	SeriesCode string             `json:"seriesCode"`
	DocType    string             `json:"docType"`
	Number     int64              `json:"number"`
	DocumentNo string             `json:"documentNo"`
	IssuedAt   string             `json:"issuedAt"`
	Customer   json.RawMessage    `json:"customer"`
	Lines      []payloadLine      `json:"lines"`
	Totals     dto.TotalsResponse `json:"totals"`
}

// buildPayload congela el documento que más tarde se firma. Se guarda ya canonicalizado:
// los bytes persistidos son exactamente los que cubre la firma.
func buildPayload(invoiceID string, s *entity.Series, number int64, in dto.IssueInvoiceRequest, lines []*entity.InvoiceLine, t domainbilling.Totals, now time.Time) (json.RawMessage, error) {
	doc := payloadDoc{
		InvoiceID:  invoiceID,
		CompanyID:  s.CompanyID,
		SeriesID:   s.ID,
		SeriesCode: s.Code,
		DocType:    s.DocType,
		Number:     number,
		DocumentNo: fmt.Sprintf("%s %s/%d", s.DocType, s.Code, number),
		IssuedAt:   now.Format(time.RFC3339),
		Customer:   bytes.TrimSpace(in.Customer),
		Lines:      make([]payloadLine, 0, len(lines)),
		Totals: dto.TotalsResponse{
			Net:   t.Net.StringFixed(2),
			Tax:   t.Tax.StringFixed(2),
			Gross: t.Gross.StringFixed(2),
		},
	}
	for _, l := range lines {
		doc.Lines = append(doc.Lines, payloadLine{
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
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializar payload: %w", err)
	}
	return agt.Canonicalize(raw)
}
