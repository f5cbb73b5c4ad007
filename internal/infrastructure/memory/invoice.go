package memory

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

type invoiceRepo struct{ u unit }

func (r *invoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	return r.u.do(func(st *state) error {
		if _, ok := st.invoices[inv.ID]; ok {
			return domain.ErrConflict
		}
		for _, other := range st.invoices {
			if other.SeriesID == inv.SeriesID && other.Number == inv.Number {
				return domain.ErrConflict
			}
		}
		c := *inv
		c.Payload = append([]byte(nil), inv.Payload...)
		c.Lines = nil
		st.invoices[inv.ID] = c
		return nil
	})
}

func (r *invoiceRepo) CreateLine(ctx context.Context, line *entity.InvoiceLine) error {
	return r.u.do(func(st *state) error {
		if _, ok := st.invoices[line.InvoiceID]; !ok {
			return domain.ErrNotFound
		}
		st.lines[line.InvoiceID] = append(st.lines[line.InvoiceID], *line)
		return nil
	})
}

func (r *invoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	var out *entity.Invoice
	err := r.u.do(func(st *state) error {
		inv, ok := st.invoices[id]
		if !ok {
			return nil
		}
		inv.Payload = append([]byte(nil), inv.Payload...)
		out = &inv
		return nil
	})
	return out, err
}

// GetForUpdate: dentro de RunInTx el mutex del store ya serializa la transacción completa.
func (r *invoiceRepo) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *invoiceRepo) GetLines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error) {
	var out []*entity.InvoiceLine
	err := r.u.do(func(st *state) error {
		for _, l := range st.lines[invoiceID] {
			l := l
			out = append(out, &l)
		}
		return nil
	})
	return out, err
}

func (r *invoiceRepo) UpdateStatus(ctx context.Context, id, status string, from []string, at time.Time) error {
	return r.u.do(func(st *state) error {
		inv, ok := st.invoices[id]
		if !ok {
			return domain.ErrNotFound
		}
		allowed := false
		for _, f := range from {
			if inv.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.ErrInvalidTransition
		}
		inv.Status = status
		inv.UpdatedAt = at
		st.invoices[id] = inv
		return nil
	})
}

func (r *invoiceRepo) MaxNumber(ctx context.Context, seriesID string) (int64, error) {
	var top int64
	err := r.u.do(func(st *state) error {
		for _, inv := range st.invoices {
			if inv.SeriesID == seriesID && inv.Number > top {
				top = inv.Number
			}
		}
		return nil
	})
	return top, err
}
