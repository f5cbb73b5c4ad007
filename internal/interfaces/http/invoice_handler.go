package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

// InvoiceHandler emisión y consulta de facturas.
type InvoiceHandler struct {
	issue *billing.IssueInvoiceUseCase
	ops   *submission.OpsUseCase
	log   zerolog.Logger
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(issue *billing.IssueInvoiceUseCase, ops *submission.OpsUseCase, log zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{issue: issue, ops: ops, log: log}
}

// Issue godoc
// @Summary      Emitir factura
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Idempotency-Key  header  string                   true  "Clave de idempotencia"
// @Param        body               body    dto.IssueInvoiceRequest  true  "Documento"
// @Success      201  {object}  dto.InvoiceResponse
// @Success      200  {object}  dto.DuplicateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      412  {object}  dto.ErrorResponse
// @Router       /api/invoices/issue [post]
func (h *InvoiceHandler) Issue(c *fiber.Ctx) error {
	var in dto.IssueInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.issue.Issue(c.UserContext(), GetIdempotencyKey(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// GetByID factura con líneas e historial de envíos.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	out, err := h.issue.GetInvoice(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Submit encola a mano el envío al registro AGT de una factura ya emitida.
// POST /api/invoices/:id/submit
func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	out, err := h.ops.SubmitInvoice(c.UserContext(), GetIdempotencyKey(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(out)
}
