package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ServiceName string
	SeriesUC    *billing.SeriesUseCase
	IssueUC     *billing.IssueInvoiceUseCase
	OpsUC       *submission.OpsUseCase
	Guard       *idempotency.Guard
	Log         zerolog.Logger

	// Opcionales.
	Metrics  HTTPObserver
	Gatherer prometheus.Gatherer             // nil = sin /metrics
	Health   func(ctx context.Context) error // nil = siempre ok
}

// Router registra /health, /metrics y las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Use(RequestLogger(deps.Log, deps.Metrics))

	app.Get("/health", healthHandler(deps))
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", IdempotencyMiddleware(deps.Guard, deps.Log))

	series := api.Group("/series")
	seriesHandler := NewSeriesHandler(deps.SeriesUC, deps.Log)
	series.Get("/", seriesHandler.List)
	series.Post("/", seriesHandler.Create)
	series.Patch("/:id", seriesHandler.Update)

	invoices := api.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.IssueUC, deps.OpsUC, deps.Log)
	invoices.Post("/issue", invoiceHandler.Issue)
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Post("/:id/submit", invoiceHandler.Submit)

	// retry-failed antes de /:id para que no se interprete como id.
	submissions := api.Group("/submissions")
	submissionHandler := NewSubmissionHandler(deps.OpsUC, deps.Log)
	submissions.Get("/", submissionHandler.List)
	submissions.Post("/retry-failed", submissionHandler.RetryFailed)
	submissions.Get("/:id", submissionHandler.GetByID)
	submissions.Post("/:id/retry", submissionHandler.Retry)
}

func healthHandler(deps RouterDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				deps.Log.Warn().Err(err).Msg("health check falló")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "service": deps.ServiceName})
			}
		}
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	}
}
