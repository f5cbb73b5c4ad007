package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
	"github.com/jhoicas/efactura-agt/pkg/agt"
)

// AlarmSignerCredentials valor del campo "alarm" en el log de fallo del firmante.
const AlarmSignerCredentials = "signer_credentials"

const (
	auditPrefixLength = 32
	completeTimeout   = 10 * time.Second
)

// Config parámetros del worker.
type Config struct {
	Concurrency    int
	BatchSize      int
	MaxAttempts    int
	Backoff        []time.Duration
	PollInterval   time.Duration
	ClaimTTL       time.Duration
	SignerCooldown time.Duration
}

func (c *Config) normalize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 20
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 2 * time.Minute
	}
}

// Option configura el worker.
type Option func(*Worker)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithMetrics registra las métricas del worker.
func WithMetrics(m Metrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// Worker procesa la cola de envíos: toma la entrada, firma, llama al registro y concilia estados.
// Varias instancias pueden compartir la misma cola: el claim condicional evita el doble proceso.
type Worker struct {
	tx       TxRunner
	repos    repository.Repos
	signer   agt.Signer
	registry RegistryClient
	metrics  Metrics
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	wake     chan struct{}

	mu          sync.Mutex
	pausedUntil time.Time
	signerFault bool
}

// NewWorker construye el worker.
func NewWorker(tx TxRunner, repos repository.Repos, signer agt.Signer, registry RegistryClient, cfg Config, log zerolog.Logger, opts ...Option) *Worker {
	cfg.normalize()
	w := &Worker{
		tx:       tx,
		repos:    repos,
		signer:   signer,
		registry: registry,
		metrics:  nopMetrics{},
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify despierta el loop sin esperar al siguiente tick. No bloquea.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run procesa lotes hasta que ctx se cancela.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info().
		Int("concurrency", w.cfg.Concurrency).
		Int("max_attempts", w.cfg.MaxAttempts).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("worker de envíos iniciado")

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("ciclo del worker falló")
		}
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker de envíos detenido")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// RunOnce libera claims vencidos, actualiza la profundidad de la cola y procesa un lote.
// Devuelve cuántas entradas se procesaron (las perdidas por claim no cuentan).
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()

	released, err := w.repos.Submissions.ReleaseStale(ctx, now.Add(-w.cfg.ClaimTTL))
	if err != nil {
		return 0, fmt.Errorf("liberar claims vencidos: %w", err)
	}
	if released > 0 {
		w.log.Warn().Int("released", released).Msg("claims abandonados liberados")
	}

	if depth, err := w.repos.Submissions.CountDue(ctx, now); err == nil {
		w.metrics.SetQueueDepth(depth)
	}

	if w.paused(now) {
		w.log.Debug().Msg("worker en pausa por fallo del firmante")
		return 0, nil
	}

	due, err := w.repos.Submissions.ListDue(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("listar envíos pendientes: %w", err)
	}

	var processed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	seen := make(map[string]bool, len(due))
	for _, e := range due {
		// Una sola entrada por factura en el lote: la segunda perdería el claim igualmente.
		if seen[e.InvoiceID] {
			continue
		}
		seen[e.InvoiceID] = true
		if gctx.Err() != nil || w.paused(w.now()) {
			break
		}
		e := e
		g.Go(func() error {
			if w.paused(w.now()) {
				return nil
			}
			err := w.ProcessEntry(gctx, e)
			switch {
			case err == nil:
				processed.Add(1)
			case errors.Is(err, domain.ErrClaimConflict):
				w.log.Debug().Str("submission_id", e.ID).Msg("entrada tomada por otro worker")
			default:
				w.log.Error().Err(err).Str("submission_id", e.ID).Str("invoice_id", e.InvoiceID).Msg("procesar envío falló")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(processed.Load()), nil
}

// ProcessEntry ejecuta un intento completo sobre la entrada. Devuelve domain.ErrClaimConflict
// si otro worker la tomó primero (sin efectos); los resultados del registro nunca son error.
func (w *Worker) ProcessEntry(ctx context.Context, entry *entity.SubmissionEntry) error {
	token := uuid.New().String()
	e, err := w.repos.Submissions.Claim(ctx, entry.ID, token, w.now())
	if err != nil {
		return err
	}
	log := w.log.With().Str("submission_id", e.ID).Str("invoice_id", e.InvoiceID).Logger()

	// El intento termina antes de que ReleaseStale pueda considerar abandonado este claim.
	ctx, cancel := context.WithTimeout(ctx, w.attemptBudget())
	defer cancel()

	// 1) Factura
	inv, err := w.repos.Invoices.GetByID(ctx, e.InvoiceID)
	if err != nil {
		w.release(e, token, log)
		return fmt.Errorf("cargar factura: %w", err)
	}
	if inv == nil {
		log.Error().Msg("factura inexistente: envío terminal")
		w.metrics.IncTerminal(entity.SubmissionErrorInvoiceNotFound)
		return w.complete(e, token, nil, func(e *entity.SubmissionEntry) {
			e.Status = entity.SubmissionStatusError
			e.NextAttemptAt = nil
			e.Error = "factura no encontrada"
			e.ErrorKind = entity.SubmissionErrorInvoiceNotFound
		})
	}

	// 2) Intento registrado antes de cualquier efecto externo
	at := w.now()
	attempts := e.Attempts + 1
	if err := w.repos.Submissions.RecordAttempt(ctx, e.ID, token, attempts, at); err != nil {
		w.release(e, token, log)
		return fmt.Errorf("registrar intento: %w", err)
	}
	e.Attempts = attempts
	e.LastAttemptAt = &at
	log = log.With().Int("attempt", attempts).Logger()

	// 3) Firma
	bundle, err := w.signer.Sign(inv.Payload)
	if err != nil {
		w.signerFailed(err, log)
		w.metrics.IncTerminal(entity.SubmissionErrorSigner)
		return w.complete(e, token, nil, func(e *entity.SubmissionEntry) {
			e.Status = entity.SubmissionStatusError
			e.NextAttemptAt = nil
			e.Error = err.Error()
			e.ErrorKind = entity.SubmissionErrorSigner
		})
	}
	w.signerRecovered()
	e.Request = auditRequest(bundle.JWS)

	// 4) Registro
	started := time.Now()
	resp, callErr := w.registry.Register(ctx, e.IdempotencyKey, bundle.JWS)
	out := Classify(resp, callErr)
	w.metrics.ObserveAttempt(out.Kind.String(), time.Since(started))
	log = log.With().Int("status_code", out.StatusCode).Str("outcome", out.Kind.String()).Logger()

	// 5/6) Resultado
	switch out.Kind {
	case OutcomeAccepted:
		log.Info().Msg("documento registrado en AGT")
		return w.complete(e, token, &invoiceTransition{
			to:   entity.InvoiceStatusRegistered,
			from: []string{entity.InvoiceStatusIssued, entity.InvoiceStatusRejected},
		}, func(e *entity.SubmissionEntry) {
			e.Status = entity.SubmissionStatusSuccess
			e.Response = out.Body
			e.NextAttemptAt = nil
			e.Error = ""
			e.ErrorKind = ""
		})

	case OutcomeRejected:
		log.Warn().Str("response", truncate(out.Body, 512)).Msg("documento rechazado por AGT: requiere corrección")
		w.metrics.IncTerminal(entity.SubmissionErrorRejected)
		return w.complete(e, token, &invoiceTransition{
			to:   entity.InvoiceStatusRejected,
			from: []string{entity.InvoiceStatusIssued},
		}, func(e *entity.SubmissionEntry) {
			e.Status = entity.SubmissionStatusError
			e.Response = out.Body
			e.NextAttemptAt = nil
			e.Error = out.Message
			e.ErrorKind = entity.SubmissionErrorRejected
		})

	default:
		var next *time.Time
		kind := entity.SubmissionErrorTransient
		if attempts < w.cfg.MaxAttempts {
			t := w.now().Add(Backoff(w.cfg.Backoff, attempts))
			next = &t
			log.Warn().Str("error", out.Message).Time("next_attempt_at", t).Msg("envío fallido: reintento programado")
		} else {
			kind = entity.SubmissionErrorExhausted
			w.metrics.IncTerminal(kind)
			log.Error().Str("error", out.Message).Msg("envío agotó los reintentos: requiere acción del operador")
		}
		return w.complete(e, token, nil, func(e *entity.SubmissionEntry) {
			e.Status = entity.SubmissionStatusError
			e.Response = out.Body
			e.NextAttemptAt = next
			e.Error = out.Message
			e.ErrorKind = kind
		})
	}
}

// attemptBudget tiempo máximo desde el claim hasta tener el resultado del registro.
// Deja margen para complete dentro de ClaimTTL; un intento que lo agota queda como transitorio.
func (w *Worker) attemptBudget() time.Duration {
	if w.cfg.ClaimTTL > 4*completeTimeout {
		return w.cfg.ClaimTTL - 2*completeTimeout
	}
	return w.cfg.ClaimTTL / 2
}

type invoiceTransition struct {
	to   string
	from []string
}

// complete persiste el resultado y, si corresponde, el estado de la factura en una sola transacción.
// Usa un contexto propio: un apagado a mitad del intento no debe perder el resultado.
func (w *Worker) complete(e *entity.SubmissionEntry, token string, tr *invoiceTransition, apply func(e *entity.SubmissionEntry)) error {
	apply(e)
	e.UpdatedAt = w.now()

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()

	return w.tx.RunInTx(ctx, func(r repository.Repos) error {
		if err := r.Submissions.Complete(ctx, e, token); err != nil {
			return fmt.Errorf("completar envío: %w", err)
		}
		if tr == nil {
			return nil
		}
		err := r.Invoices.UpdateStatus(ctx, e.InvoiceID, tr.to, tr.from, e.UpdatedAt)
		if errors.Is(err, domain.ErrInvalidTransition) {
			w.log.Warn().Str("invoice_id", e.InvoiceID).Str("to", tr.to).Msg("estado de factura no cambia: transición no permitida")
			return nil
		}
		return err
	})
}

// release suelta el claim sin tocar el resultado (error de infraestructura antes del intento).
func (w *Worker) release(e *entity.SubmissionEntry, token string, log zerolog.Logger) {
	if err := w.complete(e, token, nil, func(*entity.SubmissionEntry) {}); err != nil {
		log.Warn().Err(err).Msg("no se pudo liberar el claim; se liberará por vencimiento")
	}
}

// ── alarma del firmante ─────────────────────────────────────────────────────

func (w *Worker) paused(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Before(w.pausedUntil)
}

func (w *Worker) signerFailed(err error, log zerolog.Logger) {
	credential := errors.Is(err, agt.ErrCredentialNotFound) || errors.Is(err, agt.ErrCredentialUnreadable)
	if !credential {
		log.Error().Err(err).Msg("no se pudo firmar el documento")
		return
	}

	w.mu.Lock()
	w.signerFault = true
	w.pausedUntil = w.now().Add(w.cfg.SignerCooldown)
	w.mu.Unlock()

	w.metrics.SetSignerFault(true)
	log.Error().
		Err(err).
		Str("alarm", AlarmSignerCredentials).
		Dur("cooldown", w.cfg.SignerCooldown).
		Msg("firmante sin credenciales válidas: envíos en pausa, revisar AGT_P12_PATH/AGT_P12_PASSWORD")
}

func (w *Worker) signerRecovered() {
	w.mu.Lock()
	was := w.signerFault
	w.signerFault = false
	w.mu.Unlock()
	if was {
		w.metrics.SetSignerFault(false)
		w.log.Info().Str("alarm", AlarmSignerCredentials).Msg("firmante recuperado")
	}
}

// SignerFault indica si la alarma del firmante está activa.
func (w *Worker) SignerFault() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signerFault
}

// auditRequest guarda solo el inicio del JWS: la firma completa no se persiste en claro.
func auditRequest(jws string) string {
	return fmt.Sprintf(`{"documentJws":%q}`, truncate(jws, auditPrefixLength)+"...")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
