package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/dto"
)

// SeriesHandler series de numeración.
type SeriesHandler struct {
	uc  *billing.SeriesUseCase
	log zerolog.Logger
}

// NewSeriesHandler construye el handler.
func NewSeriesHandler(uc *billing.SeriesUseCase, log zerolog.Logger) *SeriesHandler {
	return &SeriesHandler{uc: uc, log: log}
}

// List godoc
// @Summary      Listar series
// @Tags         series
// @Produce      json
// @Param        limit   query  int  false  "Límite"
// @Param        offset  query  int  false  "Desplazamiento"
// @Success      200  {array}  dto.SeriesResponse
// @Router       /api/series [get]
func (h *SeriesHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return badBody(c)
	}
	out, err := h.uc.List(c.UserContext(), page)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Create godoc
// @Summary      Crear serie
// @Tags         series
// @Accept       json
// @Produce      json
// @Param        X-Idempotency-Key  header  string                   true  "Clave de idempotencia"
// @Param        body               body    dto.CreateSeriesRequest  true  "Serie"
// @Success      201  {object}  dto.SeriesResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/series [post]
func (h *SeriesHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateSeriesRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.uc.Create(c.UserContext(), GetIdempotencyKey(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Update PATCH /api/series/:id
func (h *SeriesHandler) Update(c *fiber.Ctx) error {
	var in dto.UpdateSeriesRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.uc.Update(c.UserContext(), GetIdempotencyKey(c), c.Params("id"), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
