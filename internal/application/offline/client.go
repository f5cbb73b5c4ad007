package offline

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/efactura-agt/internal/domain/entity"
)

// IssueResult resultado de una emisión desde el cliente.
type IssueResult struct {
	IdempotencyKey string
	Queued         bool // sin conexión: quedó en el buffer
	StatusCode     int
	Body           []byte
	Pending        *entity.PendingRequest
}

// Client emite facturas contra el API y, si no hay conexión, las guarda en el buffer.
type Client struct {
	api    API
	buffer *Buffer
	log    zerolog.Logger
	newKey func() string
}

// NewClient construye el cliente.
func NewClient(api API, buffer *Buffer, log zerolog.Logger) *Client {
	return &Client{
		api:    api,
		buffer: buffer,
		log:    log,
		newKey: func() string { return uuid.NewString() },
	}
}

// Issue genera una clave nueva y envía la emisión. Un fallo de transporte o un
// 502/503/504 del proxy la guarda en el buffer con esa misma clave (Queued=true).
// Cualquier otra respuesta no 2xx se devuelve como *APIError.
func (c *Client) Issue(ctx context.Context, payload []byte) (*IssueResult, error) {
	key := c.newKey()
	if _, err := seriesOf(payload); err != nil {
		return nil, err
	}

	resp, err := c.api.IssueInvoice(ctx, key, payload)
	if err == nil && resp.OK() {
		return &IssueResult{IdempotencyKey: key, StatusCode: resp.StatusCode, Body: resp.Body}, nil
	}
	if err == nil && !unreachable(resp.StatusCode) {
		return &IssueResult{IdempotencyKey: key, StatusCode: resp.StatusCode, Body: resp.Body},
			&APIError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	ev := c.log.Warn().Str("idempotency_key", key)
	if err != nil {
		ev = ev.Err(err)
	} else {
		ev = ev.Int("status_code", resp.StatusCode)
	}
	ev.Msg("API no disponible; la emisión se guarda offline")

	p, qerr := c.buffer.EnqueueOffline(ctx, key, payload)
	if qerr != nil {
		return nil, qerr
	}
	return &IssueResult{IdempotencyKey: key, Queued: true, Pending: p}, nil
}

func unreachable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
