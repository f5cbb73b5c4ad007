package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create persiste la cabecera. payload es bytea: se guardan los bytes canónicos tal cual, sin reformatear.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO invoices (id, company_id, series_id, doc_type, number, status,
			total_net, total_tax, total_gross, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.CompanyID, inv.SeriesID, inv.DocType, inv.Number, inv.Status,
		inv.NetTotal, inv.TaxTotal, inv.GrossTotal, []byte(inv.Payload),
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice number already exists: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateLine persiste una línea de detalle.
func (r *InvoiceRepo) CreateLine(ctx context.Context, l *entity.InvoiceLine) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO invoice_lines (id, invoice_id, line_no, description, qty, unit_price, tax_rate,
			line_net, line_tax, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.InvoiceID, l.LineNo, l.Description, l.Qty, l.UnitPrice, l.TaxRate,
		l.LineNet, l.LineTax, l.LineTotal,
	)
	if err != nil {
		return fmt.Errorf("insert invoice line: %w", err)
	}
	return nil
}

const invoiceColumns = `id, company_id, series_id, doc_type, number, status,
	total_net, total_tax, total_gross, payload, created_at, updated_at`

// GetByID devuelve la cabecera sin líneas.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetForUpdate bloquea la fila de la factura hasta el fin de la transacción.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *InvoiceRepo) get(ctx context.Context, sql, id string) (*entity.Invoice, error) {
	var (
		inv     entity.Invoice
		payload []byte
	)
	err := r.q.QueryRow(ctx, sql, id).Scan(
		&inv.ID, &inv.CompanyID, &inv.SeriesID, &inv.DocType, &inv.Number, &inv.Status,
		&inv.NetTotal, &inv.TaxTotal, &inv.GrossTotal, &payload, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Payload = payload
	return &inv, nil
}

func (r *InvoiceRepo) GetLines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, invoice_id, line_no, description, qty, unit_price, tax_rate, line_net, line_tax, line_total
		FROM invoice_lines WHERE invoice_id = $1
		ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	defer rows.Close()

	var out []*entity.InvoiceLine
	for rows.Next() {
		var l entity.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNo, &l.Description, &l.Qty, &l.UnitPrice,
			&l.TaxRate, &l.LineNet, &l.LineTax, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpdateStatus aplica el cambio solo si el estado actual está en from.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id, status string, from []string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`, id, status, at, from)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *InvoiceRepo) MaxNumber(ctx context.Context, seriesID string) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM invoices WHERE series_id = $1`, seriesID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max invoice number: %w", err)
	}
	return n, nil
}
