package repository

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para Invoice y sus líneas.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	CreateLine(ctx context.Context, line *entity.InvoiceLine) error
	// GetByID devuelve nil, nil si la factura no existe.
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// GetForUpdate igual que GetByID pero bloquea la fila hasta el fin de la transacción.
	// Serializa las operaciones que deciden sobre los envíos de una misma factura.
	GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error)
	GetLines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error)
	// UpdateStatus cambia el estado solo si el estado actual está en from (compare-and-swap).
	// Devuelve domain.ErrInvalidTransition si no se aplicó.
	UpdateStatus(ctx context.Context, id, status string, from []string, at time.Time) error
	// MaxNumber devuelve el mayor número emitido en la serie (0 si no hay facturas).
	MaxNumber(ctx context.Context, seriesID string) (int64, error)
}
