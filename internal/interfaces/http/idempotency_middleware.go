package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
)

// HeaderIdempotencyKey header obligatorio en las llamadas mutantes.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// LocalIdempotencyKey clave normalizada en c.Locals.
const LocalIdempotencyKey = "idempotency_key"

// IdempotencyMiddleware exige X-Idempotency-Key en POST/PUT/PATCH/DELETE:
//   - sin header → 412 MISSING_IDEMPOTENCY_KEY
//   - clave ya vista → 200 {"status":"duplicate"} sin ejecutar el handler
//
// La consulta aquí es solo un atajo: la reserva atómica ocurre dentro de la
// transacción del caso de uso, que vuelve a devolver duplicate si pierde la carrera.
func IdempotencyMiddleware(guard *idempotency.Guard, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		default:
			return c.Next()
		}

		key, err := idempotency.NormalizeKey(c.Get(HeaderIdempotencyKey))
		if err != nil {
			return writeError(c, log, err)
		}
		seen, err := guard.Seen(c.UserContext(), key)
		if err != nil {
			return writeError(c, log, err)
		}
		if seen {
			log.Info().Str("idempotency_key", key).Str("path", c.Path()).Msg("petición duplicada")
			return c.Status(fiber.StatusOK).JSON(duplicateBody)
		}
		c.Locals(LocalIdempotencyKey, key)
		return c.Next()
	}
}

// GetIdempotencyKey devuelve la clave (después del middleware).
func GetIdempotencyKey(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalIdempotencyKey).(string)
	return s
}
