package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/efactura-agt/internal/application/idempotency"
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// Resultados de reenvío (etiqueta de métrica).
const (
	ReplayDelivered = "delivered"
	ReplayFailed    = "failed"
	ReplaySkipped   = "skipped"
)

var errDeliveryFailed = errors.New("entrega fallida")

// ReplayReport resumen de una pasada de reenvío.
type ReplayReport struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"` // no intentadas: su serie ya falló en esta pasada o el contexto se canceló
}

// BufferOption configura el buffer.
type BufferOption func(*Buffer)

// WithBufferClock reemplaza el reloj (tests).
func WithBufferClock(now func() time.Time) BufferOption {
	return func(b *Buffer) { b.now = now }
}

// WithBufferMetrics registra las métricas de reenvío.
func WithBufferMetrics(m Metrics) BufferOption {
	return func(b *Buffer) {
		if m != nil {
			b.metrics = m
		}
	}
}

// Buffer guarda las emisiones que no llegaron al API y las reenvía, con su
// clave original, cuando vuelve la conectividad.
//
// Dentro de una serie el reenvío es estrictamente secuencial en orden de
// inserción y un fallo detiene esa serie hasta la siguiente pasada. Con
// concurrency > 1 las series distintas se reenvían en paralelo; con 1 todo el
// buffer se recorre en orden de inserción.
type Buffer struct {
	store       repository.PendingRepository
	api         API
	concurrency int
	metrics     Metrics
	log         zerolog.Logger
	now         func() time.Time

	replaying atomic.Bool
}

// NewBuffer construye el buffer.
func NewBuffer(store repository.PendingRepository, api API, concurrency int, log zerolog.Logger, opts ...BufferOption) *Buffer {
	if concurrency < 1 {
		concurrency = 1
	}
	b := &Buffer{
		store:       store,
		api:         api,
		concurrency: concurrency,
		metrics:     nopMetrics{},
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnqueueOffline guarda la emisión en el buffer durable. La clave es la que se
// reenviará; payload debe ser un objeto JSON (se extrae seriesId para agrupar).
func (b *Buffer) EnqueueOffline(ctx context.Context, key string, payload []byte) (*entity.PendingRequest, error) {
	key, err := idempotency.NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	seriesID, err := seriesOf(payload)
	if err != nil {
		return nil, err
	}
	p := &entity.PendingRequest{
		IdempotencyKey: key,
		SeriesID:       seriesID,
		Payload:        append([]byte(nil), payload...),
		CreatedAt:      b.now().UTC(),
	}
	if err := b.store.Append(ctx, p); err != nil {
		return nil, err
	}
	b.refreshPending(ctx)
	b.log.Info().
		Int64("pending_id", p.ID).
		Str("idempotency_key", key).
		Str("series_id", seriesID).
		Msg("emisión guardada en el buffer offline")
	return p, nil
}

// Pending lista el buffer en orden de inserción.
func (b *Buffer) Pending(ctx context.Context) ([]*entity.PendingRequest, error) {
	return b.store.List(ctx)
}

// Discard elimina una entrada a mano (p. ej. una emisión que el API rechaza con 4xx).
func (b *Buffer) Discard(ctx context.Context, id int64) error {
	items, err := b.store.List(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == id {
			if err := b.store.Delete(ctx, id); err != nil {
				return err
			}
			b.refreshPending(ctx)
			b.log.Warn().Int64("pending_id", id).Str("idempotency_key", it.IdempotencyKey).Msg("entrada descartada del buffer")
			return nil
		}
	}
	return domain.ErrNotFound
}

// ReplayPending reenvía el buffer. Solo puede haber una pasada a la vez;
// una segunda llamada concurrente devuelve ErrReplayInProgress.
func (b *Buffer) ReplayPending(ctx context.Context) (ReplayReport, error) {
	if !b.replaying.CompareAndSwap(false, true) {
		return ReplayReport{}, ErrReplayInProgress
	}
	defer b.replaying.Store(false)

	items, err := b.store.List(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("leer buffer: %w", err)
	}
	if len(items) == 0 {
		return ReplayReport{}, nil
	}

	var tally replayTally
	if b.concurrency == 1 {
		b.replaySequential(ctx, items, &tally)
	} else {
		var g errgroup.Group
		g.SetLimit(b.concurrency)
		for _, group := range groupBySeries(items) {
			g.Go(func() error {
				b.replaySeries(ctx, group, &tally)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := tally.report()
	b.refreshPending(ctx)
	b.log.Info().
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("reenvío del buffer terminado")
	return report, ctx.Err()
}

// replaySequential recorre todo el buffer en orden, saltando las series que ya fallaron.
func (b *Buffer) replaySequential(ctx context.Context, items []*entity.PendingRequest, tally *replayTally) {
	blocked := map[string]bool{}
	for _, p := range items {
		if ctx.Err() != nil || blocked[p.SeriesID] {
			b.skip(tally, 1)
			continue
		}
		if err := b.deliver(ctx, p); err != nil {
			blocked[p.SeriesID] = true
			tally.add(ReplayFailed)
			continue
		}
		tally.add(ReplayDelivered)
	}
}

func (b *Buffer) replaySeries(ctx context.Context, items []*entity.PendingRequest, tally *replayTally) {
	for i, p := range items {
		if ctx.Err() != nil {
			b.skip(tally, len(items)-i)
			return
		}
		if err := b.deliver(ctx, p); err != nil {
			tally.add(ReplayFailed)
			b.skip(tally, len(items)-i-1)
			return
		}
		tally.add(ReplayDelivered)
	}
}

// deliver envía una entrada con su clave original. 2xx (incluido el duplicado) la borra.
func (b *Buffer) deliver(ctx context.Context, p *entity.PendingRequest) error {
	log := b.log.With().Int64("pending_id", p.ID).Str("idempotency_key", p.IdempotencyKey).Logger()

	resp, err := b.api.IssueInvoice(ctx, p.IdempotencyKey, p.Payload)
	var reason string
	switch {
	case err != nil:
		reason = err.Error()
	case resp.OK():
		if err := b.store.Delete(ctx, p.ID); err != nil {
			// El API ya tiene la emisión: el próximo reenvío recibirá el duplicado y la borrará.
			log.Error().Err(err).Msg("no se pudo borrar la entrada entregada")
		}
		b.metrics.ObserveReplay(ReplayDelivered)
		log.Info().Int("status_code", resp.StatusCode).Msg("emisión reenviada")
		return nil
	default:
		reason = (&APIError{StatusCode: resp.StatusCode, Body: resp.Body}).Error()
	}

	b.metrics.ObserveReplay(ReplayFailed)
	if err := b.store.MarkFailed(context.WithoutCancel(ctx), p.ID, reason, b.now().UTC()); err != nil {
		log.Error().Err(err).Msg("no se pudo registrar el fallo de reenvío")
	}
	log.Warn().Str("reason", reason).Msg("reenvío fallido; la serie queda detenida hasta la próxima pasada")
	return errDeliveryFailed
}

func (b *Buffer) skip(tally *replayTally, n int) {
	tally.addN(ReplaySkipped, n)
	for range n {
		b.metrics.ObserveReplay(ReplaySkipped)
	}
}

func (b *Buffer) refreshPending(ctx context.Context) {
	n, err := b.store.Count(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	b.metrics.SetPending(n)
}

// groupBySeries agrupa preservando el orden de inserción dentro de cada serie
// y el orden de primera aparición entre series.
func groupBySeries(items []*entity.PendingRequest) [][]*entity.PendingRequest {
	index := map[string]int{}
	var groups [][]*entity.PendingRequest
	for _, p := range items {
		i, ok := index[p.SeriesID]
		if !ok {
			i = len(groups)
			index[p.SeriesID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

func seriesOf(payload []byte) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return "", domain.Invalid("payload", "debe ser un objeto JSON")
	}
	raw, ok := doc["seriesId"]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", domain.Invalid("seriesId", "debe ser texto o número")
}

type replayTally struct {
	mu sync.Mutex
	r  ReplayReport
}

func (t *replayTally) add(result string) { t.addN(result, 1) }

func (t *replayTally) addN(result string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch result {
	case ReplayDelivered:
		t.r.Delivered += n
	case ReplayFailed:
		t.r.Failed += n
	case ReplaySkipped:
		t.r.Skipped += n
	}
}

func (t *replayTally) report() ReplayReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.r
}
