package submission_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efactura-agt/internal/application/billing"
	"github.com/jhoicas/efactura-agt/internal/application/dto"
	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	infraagt "github.com/jhoicas/efactura-agt/internal/infrastructure/agt"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/memory"
	"github.com/jhoicas/efactura-agt/pkg/agt"
)

// ── dobles ──────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSigner struct {
	err   error
	calls atomic.Int32
}

func (s *fakeSigner) Sign(payload []byte) (*agt.SignatureBundle, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	jws := "eyJhbGciOiJQUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
	return &agt.SignatureBundle{JWS: jws, Kid: "kid-test"}, nil
}

type fakeMetrics struct {
	mu          sync.Mutex
	outcomes    map[string]int
	terminal    map[string]int
	signerFault bool
	depth       int
}

func newMetrics() *fakeMetrics {
	return &fakeMetrics{outcomes: map[string]int{}, terminal: map[string]int{}}
}

func (m *fakeMetrics) ObserveAttempt(outcome string, _ time.Duration) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}

func (m *fakeMetrics) IncTerminal(kind string) {
	m.mu.Lock()
	m.terminal[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) SetSignerFault(active bool) {
	m.mu.Lock()
	m.signerFault = active
	m.mu.Unlock()
}

func (m *fakeMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	m.depth = n
	m.mu.Unlock()
}

// registryMock registro AGT simulado que cuenta las llamadas.
type registryMock struct {
	srv    *httptest.Server
	hits   atomic.Int32
	status atomic.Int32
	body   atomic.Value
	keys   chan string
	gated  atomic.Bool
	gate   chan struct{} // con gated activo, cada llamada espera a que se cierre
	inside chan struct{}
}

func newRegistry(t *testing.T, status int, body string) *registryMock {
	t.Helper()
	m := &registryMock{keys: make(chan string, 64), inside: make(chan struct{}, 64), gate: make(chan struct{})}
	m.status.Store(int32(status))
	m.body.Store(body)
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		m.keys <- r.Header.Get("X-Idempotency-Key")
		m.inside <- struct{}{}
		if m.gated.Load() {
			<-m.gate
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(m.status.Load()))
		_, _ = w.Write([]byte(m.body.Load().(string)))
	}))
	t.Cleanup(m.srv.Close)
	return m
}

// ── fixture ─────────────────────────────────────────────────────────────────

type env struct {
	store    *memory.Store
	clock    *fakeClock
	signer   *fakeSigner
	metrics  *fakeMetrics
	registry *registryMock
	issue    *billing.IssueInvoiceUseCase
	ops      *submission.OpsUseCase
	seriesID string
}

func newEnv(t *testing.T, status int, body string) *env {
	t.Helper()
	store := memory.New()
	guard := idempotency.NewGuard(store.Repos().Idempotency)
	s := &entity.Series{ID: uuid.New().String(), CompanyID: "emp-1", Code: "FT2025", DocType: "FT", NextNumber: 1, Active: true}
	require.NoError(t, store.Repos().Series.Create(context.Background(), s))
	return &env{
		store:    store,
		clock:    newClock(),
		signer:   &fakeSigner{},
		metrics:  newMetrics(),
		registry: newRegistry(t, status, body),
		issue:    billing.NewIssueInvoiceUseCase(store, store.Repos(), guard, nil, zerolog.Nop()),
		ops:      submission.NewOpsUseCase(store, store.Repos(), guard, nil, zerolog.Nop()),
		seriesID: s.ID,
	}
}

func (e *env) worker(opts ...func(*submission.Config)) *submission.Worker {
	cfg := submission.Config{
		Concurrency:    4,
		BatchSize:      10,
		MaxAttempts:    5,
		Backoff:        []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second},
		PollInterval:   time.Second,
		ClaimTTL:       2 * time.Minute,
		SignerCooldown: time.Minute,
	}
	for _, o := range opts {
		o(&cfg)
	}
	client := infraagt.NewRegistryClient(e.registry.srv.URL, 2*time.Second, 0, 0)
	return submission.NewWorker(e.store, e.store.Repos(), e.signer, client, cfg, zerolog.Nop(),
		submission.WithClock(e.clock.Now), submission.WithMetrics(e.metrics))
}

func (e *env) issueInvoice(t *testing.T, key string) (*dto.InvoiceResponse, *entity.SubmissionEntry) {
	t.Helper()
	ctx := context.Background()
	inv, err := e.issue.Issue(ctx, key, dto.IssueInvoiceRequest{
		SeriesID: e.seriesID,
		Customer: json.RawMessage(`{"name":"Cliente"}`),
		Lines: []dto.IssueLineRequest{{
			Description: "Serviço",
			Qty:         decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(100),
			LineNet:     decimal.NewFromInt(100),
			LineTax:     decimal.NewFromInt(14),
			LineTotal:   decimal.NewFromInt(114),
		}},
		SubmitToAgt: true,
	})
	require.NoError(t, err)
	subs, err := e.store.Repos().Submissions.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	return inv, subs[0]
}

func (e *env) entry(t *testing.T, id string) *entity.SubmissionEntry {
	t.Helper()
	got, err := e.store.Repos().Submissions.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func (e *env) invoiceStatus(t *testing.T, id string) string {
	t.Helper()
	inv, err := e.store.Repos().Invoices.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv.Status
}

// ── tests ───────────────────────────────────────────────────────────────────

func TestWorker_ExitoRegistraFacturaYGuardaRespuesta(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success","documentId":"AGT-123"}`)
	inv, sub := e.issueInvoice(t, "key-ok")
	w := e.worker()

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := e.entry(t, sub.ID)
	assert.Equal(t, entity.SubmissionStatusSuccess, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.Response, `"documentId":"AGT-123"`)
	assert.False(t, got.InFlight())
	assert.Equal(t, entity.InvoiceStatusRegistered, e.invoiceStatus(t, inv.ID))
	assert.Equal(t, "key-ok", <-e.registry.keys, "la clave del cliente viaja hasta el registro")

	var audit map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.Request), &audit))
	assert.Len(t, audit["documentJws"], 35, "32 caracteres del JWS + ...")
}

func TestWorker_TopeDeCincoIntentosConBackoff(t *testing.T) {
	e := newEnv(t, http.StatusInternalServerError, `{"error":"down"}`)
	inv, sub := e.issueInvoice(t, "key-500")
	w := e.worker()
	ctx := context.Background()

	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), e.registry.hits.Load())

	// El reintento no está vencido: no hay llamada.
	e.clock.Advance(9 * time.Second)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.registry.hits.Load())

	e.clock.Advance(time.Second)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), e.registry.hits.Load())

	for i := 0; i < 10; i++ {
		e.clock.Advance(5 * time.Minute)
		_, err = w.RunOnce(ctx)
		require.NoError(t, err)
	}

	got := e.entry(t, sub.ID)
	assert.Equal(t, int32(5), e.registry.hits.Load())
	assert.Equal(t, 5, got.Attempts)
	assert.Equal(t, entity.SubmissionStatusError, got.Status)
	assert.Equal(t, entity.SubmissionErrorExhausted, got.ErrorKind)
	assert.True(t, got.IsTerminal())
	assert.Nil(t, got.NextAttemptAt)
	assert.Equal(t, entity.InvoiceStatusIssued, e.invoiceStatus(t, inv.ID))
	assert.Equal(t, 1, e.metrics.terminal[entity.SubmissionErrorExhausted])
	assert.Equal(t, 5, e.metrics.outcomes["transient"])
}

func TestWorker_ReintentoProgramadoSegunCalendario(t *testing.T) {
	e := newEnv(t, http.StatusServiceUnavailable, ``)
	_, sub := e.issueInvoice(t, "key-503")
	w := e.worker()
	start := e.clock.Now()

	require.NoError(t, w.ProcessEntry(context.Background(), sub))

	got := e.entry(t, sub.ID)
	require.NotNil(t, got.NextAttemptAt)
	assert.Equal(t, start.Add(10*time.Second), *got.NextAttemptAt)
	assert.Equal(t, entity.SubmissionErrorTransient, got.ErrorKind)
	assert.False(t, got.IsTerminal())
}

func TestWorker_RechazoDeContenidoEsTerminal(t *testing.T) {
	e := newEnv(t, http.StatusUnprocessableEntity, `{"status":"rejected","errors":["nif inválido"]}`)
	inv, sub := e.issueInvoice(t, "key-422")
	w := e.worker()

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	got := e.entry(t, sub.ID)
	assert.Equal(t, int32(1), e.registry.hits.Load())
	assert.Equal(t, entity.SubmissionStatusError, got.Status)
	assert.Equal(t, entity.SubmissionErrorRejected, got.ErrorKind)
	assert.True(t, got.IsTerminal())
	assert.Contains(t, got.Response, "nif inválido")
	assert.Equal(t, entity.InvoiceStatusRejected, e.invoiceStatus(t, inv.ID))
}

func TestWorker_DosWorkersCompitenSoloUnoLlamaAlRegistro(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	e.registry.gated.Store(true)
	_, sub := e.issueInvoice(t, "key-race")
	a, b := e.worker(), e.worker()
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- a.ProcessEntry(ctx, sub) }()

	// A tiene el claim y está dentro de la llamada al registro.
	<-e.registry.inside
	errB := b.ProcessEntry(ctx, sub)
	close(e.registry.gate)

	assert.ErrorIs(t, errB, domain.ErrClaimConflict)
	assert.NoError(t, <-errA)
	assert.Equal(t, int32(1), e.registry.hits.Load())
	assert.Equal(t, 1, e.entry(t, sub.ID).Attempts)
}

func TestWorker_CarreraSimultaneaExactamenteUnaLlamada(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	_, sub := e.issueInvoice(t, "key-race-2")
	ctx := context.Background()

	const n = 8
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		ok       atomic.Int32
		conflict atomic.Int32
	)
	for i := 0; i < n; i++ {
		w := e.worker()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := w.ProcessEntry(ctx, sub)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, domain.ErrClaimConflict):
				conflict.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), conflict.Load())
	assert.Equal(t, int32(1), e.registry.hits.Load())
}

func TestWorker_UnaEntradaEnVueloPorFactura(t *testing.T) {
	e := newEnv(t, http.StatusInternalServerError, ``)
	inv, sub := e.issueInvoice(t, "key-a")
	extra := &entity.SubmissionEntry{
		ID:             uuid.New().String(),
		InvoiceID:      inv.ID,
		IdempotencyKey: "key-b",
		Status:         entity.SubmissionStatusPending,
		CreatedAt:      e.clock.Now(),
	}
	ctx := context.Background()
	require.NoError(t, e.store.Repos().Submissions.Enqueue(ctx, extra))

	_, err := e.store.Repos().Submissions.Claim(ctx, sub.ID, "otro-worker", e.clock.Now())
	require.NoError(t, err)

	err = e.worker().ProcessEntry(ctx, extra)
	assert.ErrorIs(t, err, domain.ErrClaimConflict)
	assert.Equal(t, int32(0), e.registry.hits.Load())
}

func TestWorker_FirmanteSinCredencialesEsTerminalYDisparaAlarma(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	e.signer.err = fmt.Errorf("%w: /etc/agt/cert.p12", agt.ErrCredentialNotFound)
	inv, first := e.issueInvoice(t, "key-s1")
	_, second := e.issueInvoice(t, "key-s2")
	w := e.worker(func(c *submission.Config) { c.Concurrency = 1 })
	ctx := context.Background()

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "tras el primer fallo el worker se pausa")

	got := e.entry(t, first.ID)
	assert.Equal(t, entity.SubmissionStatusError, got.Status)
	assert.Equal(t, entity.SubmissionErrorSigner, got.ErrorKind)
	assert.True(t, got.IsTerminal())
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, int32(0), e.registry.hits.Load())
	assert.Equal(t, entity.InvoiceStatusIssued, e.invoiceStatus(t, inv.ID))
	assert.True(t, w.SignerFault())
	assert.True(t, e.metrics.signerFault)

	// En pausa: la segunda entrada sigue pendiente.
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, entity.SubmissionStatusPending, e.entry(t, second.ID).Status)

	// Credenciales corregidas y enfriamiento cumplido.
	e.signer.err = nil
	e.clock.Advance(time.Minute)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entity.SubmissionStatusSuccess, e.entry(t, second.ID).Status)
	assert.False(t, w.SignerFault())
	assert.False(t, e.metrics.signerFault)
}

func TestWorker_FacturaInexistenteEsTerminalSinLlamada(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{}`)
	ctx := context.Background()
	orphan := &entity.SubmissionEntry{
		ID:             uuid.New().String(),
		InvoiceID:      uuid.New().String(),
		IdempotencyKey: "key-orphan",
		Status:         entity.SubmissionStatusPending,
		CreatedAt:      e.clock.Now(),
	}
	require.NoError(t, e.store.Repos().Submissions.Enqueue(ctx, orphan))

	require.NoError(t, e.worker().ProcessEntry(ctx, orphan))

	got := e.entry(t, orphan.ID)
	assert.Equal(t, entity.SubmissionErrorInvoiceNotFound, got.ErrorKind)
	assert.True(t, got.IsTerminal())
	assert.Equal(t, int32(0), e.registry.hits.Load())
	assert.Equal(t, int32(0), e.signer.calls.Load())
}

func TestWorker_ReintentoDelOperadorConservaIntentos(t *testing.T) {
	e := newEnv(t, http.StatusInternalServerError, ``)
	inv, sub := e.issueInvoice(t, "key-ops")
	w := e.worker()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := w.RunOnce(ctx)
		require.NoError(t, err)
		e.clock.Advance(5 * time.Minute)
	}
	require.True(t, e.entry(t, sub.ID).IsTerminal())

	_, err := e.ops.Retry(ctx, "retry-1", sub.ID)
	require.NoError(t, err)
	requeued := e.entry(t, sub.ID)
	assert.Equal(t, entity.SubmissionStatusPending, requeued.Status)
	assert.Equal(t, 5, requeued.Attempts)

	e.registry.status.Store(http.StatusOK)
	e.registry.body.Store(`{"status":"success","documentId":"AGT-9"}`)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)

	got := e.entry(t, sub.ID)
	assert.Equal(t, entity.SubmissionStatusSuccess, got.Status)
	assert.Equal(t, 6, got.Attempts)
	assert.Equal(t, entity.InvoiceStatusRegistered, e.invoiceStatus(t, inv.ID))
}

func TestWorker_ClaimAbandonadoSeLiberaTrasTTL(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	_, sub := e.issueInvoice(t, "key-stale")
	ctx := context.Background()

	_, err := e.store.Repos().Submissions.Claim(ctx, sub.ID, "worker-caido", e.clock.Now())
	require.NoError(t, err)
	w := e.worker()

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.clock.Advance(3 * time.Minute)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entity.SubmissionStatusSuccess, e.entry(t, sub.ID).Status)
}

func TestWorker_RunSeDetieneConElContexto(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	_, sub := e.issueInvoice(t, "key-run")
	w := e.worker()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := e.store.Repos().Submissions.GetByID(context.Background(), sub.ID)
		return err == nil && got != nil && got.Status == entity.SubmissionStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó tras cancelar el contexto")
	}
}

func TestWorker_IntentoLentoTerminaAntesDelTTLDelClaim(t *testing.T) {
	e := newEnv(t, http.StatusOK, `{"status":"success"}`)
	e.registry.gated.Store(true)
	t.Cleanup(func() { close(e.registry.gate) })
	_, sub := e.issueInvoice(t, "key-lento")
	w := e.worker(func(c *submission.Config) { c.ClaimTTL = 300 * time.Millisecond })

	done := make(chan error, 1)
	go func() { done <- w.ProcessEntry(context.Background(), sub) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("el intento no respetó el plazo del claim")
	}

	got := e.entry(t, sub.ID)
	assert.False(t, got.InFlight(), "el claim se libera al completar")
	assert.Equal(t, entity.SubmissionStatusError, got.Status)
	assert.Equal(t, entity.SubmissionErrorTransient, got.ErrorKind)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextAttemptAt)
	assert.Equal(t, int32(1), e.registry.hits.Load())
}
