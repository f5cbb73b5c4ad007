// Package apiclient es el cliente HTTP que usa el cliente offline para hablar con el API de emisión.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/efactura-agt/internal/application/offline"
)

const (
	issuePath       = "/api/invoices/issue"
	healthPath      = "/health"
	maxResponseBody = 1 << 20
)

// Client implementa offline.API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ offline.API = (*Client)(nil)

// New construye el cliente; timeout acota cada llamada.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IssueInvoice POST /api/invoices/issue con la clave de idempotencia.
func (c *Client) IssueInvoice(ctx context.Context, idempotencyKey string, payload []byte) (*offline.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+issuePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("apiclient: construir request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: POST %s: %w", issuePath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("apiclient: leer respuesta: %w", err)
	}
	return &offline.Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Ping GET /health; cualquier status distinto de 200 cuenta como sin conexión.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("apiclient: construir request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: GET %s: %w", healthPath, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("apiclient: GET %s: status %d", healthPath, resp.StatusCode)
	}
	return nil
}
