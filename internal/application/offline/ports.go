package offline

import (
	"context"
	"errors"
	"fmt"
)

// ErrReplayInProgress otra reproducción del buffer ya está en curso.
var ErrReplayInProgress = errors.New("ya hay un reenvío del buffer en curso")

// Response respuesta cruda del API de emisión.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK indica un 2xx (incluye la respuesta {"status":"duplicate"}).
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// API cliente HTTP del servicio de emisión. IssueInvoice solo devuelve error
// ante fallos de transporte; un 4xx/5xx viene en la respuesta.
type API interface {
	IssueInvoice(ctx context.Context, idempotencyKey string, payload []byte) (*Response, error)
	Ping(ctx context.Context) error
}

// Metrics métricas del cliente offline.
type Metrics interface {
	ObserveReplay(result string)
	SetPending(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveReplay(string) {}
func (nopMetrics) SetPending(int)       {}

// APIError el API respondió pero rechazó la emisión.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("el API respondió %d: %s", e.StatusCode, truncate(string(e.Body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
