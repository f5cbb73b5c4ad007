package submission

import (
	"context"
	"time"

	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// TxRunner ejecuta fn dentro de una transacción (mismo contrato que billing.TxRunner).
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(repos repository.Repos) error) error
}

// RegistryResponse respuesta cruda del registro AGT.
type RegistryResponse struct {
	StatusCode int
	Body       []byte
}

// RegistryClient llamada saliente POST <registry>/register.
// Solo devuelve error ante fallos de transporte (timeout, conexión); un 4xx/5xx viene en la respuesta.
type RegistryClient interface {
	Register(ctx context.Context, idempotencyKey, documentJWS string) (*RegistryResponse, error)
}

// Metrics métricas del worker. Implementación Prometheus en infrastructure/metrics.
type Metrics interface {
	ObserveAttempt(outcome string, elapsed time.Duration)
	IncTerminal(kind string)
	SetSignerFault(active bool)
	SetQueueDepth(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(string, time.Duration) {}
func (nopMetrics) IncTerminal(string)                   {}
func (nopMetrics) SetSignerFault(bool)                  {}
func (nopMetrics) SetQueueDepth(int)                    {}
