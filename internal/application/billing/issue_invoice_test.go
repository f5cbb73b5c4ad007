package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
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
	"github.com/jhoicas/efactura-agt/internal/domain"
	"github.com/jhoicas/efactura-agt/internal/domain/entity"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/memory"
	"github.com/jhoicas/efactura-agt/pkg/agt"
)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type fixture struct {
	store    *memory.Store
	guard    *idempotency.Guard
	notifier *countingNotifier
	uc       *billing.IssueInvoiceUseCase
	series   *entity.Series
}

func newFixture(t *testing.T, next int64, active bool) *fixture {
	t.Helper()
	store := memory.New()
	guard := idempotency.NewGuard(store.Repos().Idempotency)
	n := &countingNotifier{}
	s := &entity.Series{
		ID:         uuid.New().String(),
		CompanyID:  "emp-1",
		Code:       "FT2025",
		DocType:    "FT",
		NextNumber: next,
		Active:     active,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, store.Repos().Series.Create(context.Background(), s))
	return &fixture{
		store:    store,
		guard:    guard,
		notifier: n,
		uc:       billing.NewIssueInvoiceUseCase(store, store.Repos(), guard, n, zerolog.Nop()),
		series:   s,
	}
}

func issueRequest(seriesID string, submit bool) dto.IssueInvoiceRequest {
	return dto.IssueInvoiceRequest{
		SeriesID: seriesID,
		Customer: json.RawMessage(`{"name":"Cliente Final","nif":"999999999"}`),
		Lines: []dto.IssueLineRequest{
			{
				Description: "Consultoría",
				Qty:         decimal.NewFromInt(2),
				UnitPrice:   decimal.RequireFromString("10.00"),
				TaxRate:     decimal.NewNullDecimal(decimal.NewFromInt(14)),
				LineNet:     decimal.RequireFromString("20.00"),
				LineTax:     decimal.RequireFromString("2.80"),
				LineTotal:   decimal.RequireFromString("22.80"),
			},
			{
				Description: "Deslocação",
				Qty:         decimal.NewFromInt(1),
				UnitPrice:   decimal.RequireFromString("5.005"),
				LineNet:     decimal.RequireFromString("5.005"),
				LineTax:     decimal.Zero,
				LineTotal:   decimal.RequireFromString("5.005"),
			},
		},
		SubmitToAgt: submit,
	}
}

func TestIssue_CreaFacturaEmitidaYEncolaEnvio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, true)

	out, err := f.uc.Issue(ctx, "key-1", issueRequest(f.series.ID, true))
	require.NoError(t, err)

	assert.Equal(t, int64(1), out.Number)
	assert.Equal(t, entity.InvoiceStatusIssued, out.Status)
	assert.Equal(t, "emp-1", out.CompanyID)
	assert.Equal(t, "FT", out.DocType)
	assert.Equal(t, "25.01", out.Totals.Net)
	assert.Equal(t, "2.80", out.Totals.Tax)
	assert.Equal(t, "27.81", out.Totals.Gross)
	assert.Len(t, out.Lines, 2)
	assert.True(t, out.SubmissionScheduled)
	assert.Equal(t, int32(1), f.notifier.n.Load())

	s, err := f.store.Repos().Series.GetByID(ctx, f.series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.NextNumber)

	subs, err := f.store.Repos().Submissions.ListByInvoice(ctx, out.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, entity.SubmissionStatusPending, subs[0].Status)
	assert.Equal(t, "key-1", subs[0].IdempotencyKey)
	assert.Equal(t, 0, subs[0].Attempts)
}

func TestIssue_SinSubmitNoEncola(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, true)

	out, err := f.uc.Issue(ctx, "key-1", issueRequest(f.series.ID, false))
	require.NoError(t, err)

	subs, err := f.store.Repos().Submissions.ListByInvoice(ctx, out.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.False(t, out.SubmissionScheduled)
	assert.Equal(t, int32(0), f.notifier.n.Load())
}

func TestIssue_MismaClaveDosVecesUnaSolaFactura(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, true)

	first, err := f.uc.Issue(ctx, "key-dup", issueRequest(f.series.ID, true))
	require.NoError(t, err)

	_, err = f.uc.Issue(ctx, "key-dup", issueRequest(f.series.ID, true))
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	top, err := f.store.Repos().Invoices.MaxNumber(ctx, f.series.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), top, "solo una factura en la serie")

	subs, err := f.store.Repos().Submissions.ListByStatus(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, first.ID, subs[0].InvoiceID)
}

func TestIssue_NumeracionConcurrenteSinHuecosNiRepetidos(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, true)
	const n = 25

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.uc.Issue(ctx, fmt.Sprintf("key-%d", i), issueRequest(f.series.ID, false))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, out.Number)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	require.Len(t, numbers, n)
	for i, got := range numbers {
		assert.Equal(t, int64(100+i), got)
	}
}

func TestIssue_SerieInexistenteNoConsumeLaClave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, true)

	_, err := f.uc.Issue(ctx, "key-x", issueRequest(uuid.New().String(), true))
	assert.ErrorIs(t, err, domain.ErrSeriesNotFound)

	seen, err := f.guard.Seen(ctx, "key-x")
	require.NoError(t, err)
	assert.False(t, seen, "la reserva se revierte con la transacción")

	subs, err := f.store.Repos().Submissions.ListByStatus(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestIssue_SerieInactiva(t *testing.T) {
	f := newFixture(t, 1, false)

	_, err := f.uc.Issue(context.Background(), "key-1", issueRequest(f.series.ID, true))
	assert.ErrorIs(t, err, domain.ErrSeriesInactive)
}

func TestIssue_EmpresaDistintaALaSerie(t *testing.T) {
	f := newFixture(t, 1, true)
	req := issueRequest(f.series.ID, false)
	req.CompanyID = "otra"

	_, err := f.uc.Issue(context.Background(), "key-1", req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIssue_ValidacionDelPayload(t *testing.T) {
	f := newFixture(t, 1, true)
	ctx := context.Background()

	sinLineas := issueRequest(f.series.ID, false)
	sinLineas.Lines = nil
	_, err := f.uc.Issue(ctx, "k1", sinLineas)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	sinCliente := issueRequest(f.series.ID, false)
	sinCliente.Customer = json.RawMessage(`"texto"`)
	_, err = f.uc.Issue(ctx, "k2", sinCliente)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	negativo := issueRequest(f.series.ID, false)
	negativo.Lines[0].Qty = decimal.NewFromInt(-1)
	_, err = f.uc.Issue(ctx, "k3", negativo)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "lines[0].qty", verr.Field)

	_, err = f.uc.Issue(ctx, "", issueRequest(f.series.ID, false))
	assert.ErrorIs(t, err, domain.ErrMissingIdempotencyKey)
}

func TestIssue_PayloadCanonicoYCongelado(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 7, true)

	out, err := f.uc.Issue(ctx, "key-1", issueRequest(f.series.ID, false))
	require.NoError(t, err)

	canon, err := agt.Canonicalize(out.Payload)
	require.NoError(t, err)
	assert.Equal(t, string(out.Payload), string(canon))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Payload, &doc))
	assert.Equal(t, float64(7), doc["number"])
	assert.Equal(t, "FT FT2025/7", doc["documentNo"])
	assert.Equal(t, "27.81", doc["totals"].(map[string]any)["gross"])

	stored, err := f.store.Repos().Invoices.GetByID(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(out.Payload), []byte(stored.Payload))
}

func TestGetInvoice_IncluyeLineasYEnvios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, true)
	issued, err := f.uc.Issue(ctx, "key-1", issueRequest(f.series.ID, true))
	require.NoError(t, err)

	got, err := f.uc.GetInvoice(ctx, issued.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
	require.Len(t, got.Submissions, 1)
	assert.Equal(t, entity.SubmissionStatusPending, got.Submissions[0].Status)
	assert.True(t, got.SubmissionScheduled)

	_, err = f.uc.GetInvoice(ctx, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
