package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

// SubmissionHandler centro de errores: consulta y reintento de envíos al registro.
type SubmissionHandler struct {
	uc  *submission.OpsUseCase
	log zerolog.Logger
}

// NewSubmissionHandler construye el handler.
func NewSubmissionHandler(uc *submission.OpsUseCase, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{uc: uc, log: log}
}

// List godoc
// @Summary      Listar envíos
// @Tags         submissions
// @Produce      json
// @Param        status  query  string  false  "pending | success | error"
// @Success      200  {object}  dto.SubmissionListResponse
// @Router       /api/submissions [get]
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return badBody(c)
	}
	out, err := h.uc.List(c.UserContext(), c.Query("status"), page)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

func (h *SubmissionHandler) GetByID(c *fiber.Ctx) error {
	out, err := h.uc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Retry godoc
// @Summary      Reintentar un envío en error
// @Description  Vuelve a pending sin reiniciar attempts: tras el tope cada reintento concede un intento más.
// @Tags         submissions
// @Produce      json
// @Param        X-Idempotency-Key  header  string  true  "Clave de idempotencia"
// @Param        id                 path    string  true  "ID del envío"
// @Success      200  {object}  dto.SubmissionResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/submissions/{id}/retry [post]
func (h *SubmissionHandler) Retry(c *fiber.Ctx) error {
	out, err := h.uc.Retry(c.UserContext(), GetIdempotencyKey(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// RetryFailed POST /api/submissions/retry-failed (body opcional {"errorKind":"signer"}).
func (h *SubmissionHandler) RetryFailed(c *fiber.Ctx) error {
	var in dto.RetryFailedRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	n, err := h.uc.RetryAll(c.UserContext(), GetIdempotencyKey(c), in.ErrorKind)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.RetryFailedResponse{Requeued: n})
}
