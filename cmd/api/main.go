package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/agt"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/agt/signer"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/memory"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/metrics"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/efactura-agt/internal/interfaces/http"
	"github.com/jhoicas/efactura-agt/pkg/config"
	"github.com/jhoicas/efactura-agt/pkg/logger"
)

// txRunner lo cumplen postgres.TxRunner y memory.Store.
type txRunner interface {
	RunInTx(ctx context.Context, fn func(repos repository.Repos) error) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.Storage.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()

	var (
		tx     txRunner
		repos  repository.Repos
		health func(ctx context.Context) error
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.New()
		tx, repos = store, store.Repos()
		log.Warn().Msg("STORAGE_DRIVER=memory: los datos se pierden al reiniciar")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB, int32(10+cfg.Worker.Concurrency))
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()

		if cfg.DB.AutoMigrate {
			version, err := postgres.RunMigrations(pool)
			if err != nil {
				log.Fatal().Err(err).Msg("migraciones")
			}
			log.Info().Uint("schema_version", version).Msg("migraciones aplicadas")
		}
		tx, repos = postgres.NewTxRunner(pool), postgres.NewRepos(pool)
		health = pool.Ping
	}

	m := metrics.New(prometheus.DefaultRegisterer, metrics.Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
	})

	if cfg.AGT.P12Path == "" {
		log.Warn().Msg("AGT_P12_PATH vacío: el worker no podrá firmar")
	} else if creds, err := signer.LoadCredentials(cfg.AGT.P12Path, cfg.AGT.P12Password); err != nil {
		log.Error().Err(err).Str("alarm", submission.AlarmSignerCredentials).Msg("certificado de firma inválido")
	} else {
		log.Info().
			Str("subject", creds.Leaf.Subject.CommonName).
			Time("not_after", creds.Leaf.NotAfter).
			Msg("certificado de firma cargado")
	}

	worker := submission.NewWorker(
		tx, repos,
		signer.NewService(cfg.AGT.P12Path, cfg.AGT.P12Password, cfg.AGT.JWSKid),
		agt.NewRegistryClient(cfg.AGT.RegistryURL, cfg.AGT.Timeout, cfg.AGT.RateLimitRPS, cfg.AGT.RateLimitBurst),
		submission.Config{
			Concurrency:    cfg.Worker.Concurrency,
			BatchSize:      cfg.Worker.BatchSize,
			MaxAttempts:    cfg.Worker.MaxAttempts,
			Backoff:        cfg.Worker.Backoff,
			PollInterval:   cfg.Worker.PollInterval,
			ClaimTTL:       cfg.Worker.ClaimTTL,
			SignerCooldown: cfg.Worker.SignerCooldown,
		},
		log.Component("submission_worker"),
		submission.WithMetrics(m),
	)

	guard := idempotency.NewGuard(repos.Idempotency)
	seriesUC := billing.NewSeriesUseCase(tx, repos, guard, log.Component("series"))
	issueUC := billing.NewIssueInvoiceUseCase(tx, repos, guard, worker, log.Component("issuance"))
	opsUC := submission.NewOpsUseCase(tx, repos, guard, worker, log.Component("submissions"))

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if !cfg.Worker.Enabled {
			log.Warn().Msg("WORKER_ENABLED=false: la cola de envíos no se procesa en esta instancia")
			return
		}
		_ = worker.Run(workerCtx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "eFactura AGT API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		ServiceName: cfg.App.Name,
		SeriesUC:    seriesUC,
		IssueUC:     issueUC,
		OpsUC:       opsUC,
		Guard:       guard,
		Log:         log.Component("http"),
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
		Health:      health,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// El worker termina la entrada en curso y registra su resultado antes de salir.
	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("el worker no terminó a tiempo")
	}

	log.Info().Msg("aplicación detenida")
}
