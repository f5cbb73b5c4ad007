package agt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

const (
	registerPath    = "/register"
	maxResponseBody = 1 << 20
)

// ── Implementación HTTP ────────────────────────────────────────────────────────

// RegistryClient implementa submission.RegistryClient contra el endpoint REST del registro AGT.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter // nil = sin límite
}

// NewRegistryClient construye el cliente. timeout acota cada llamada (15 s por defecto);
// rps <= 0 desactiva el limitador de salida.
func NewRegistryClient(baseURL string, timeout time.Duration, rps float64, burst int) *RegistryClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &RegistryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

type registerRequest struct {
	DocumentJWS string `json:"documentJws"`
}

// Register envía el JWS con la clave de idempotencia del envío.
// Un status no-2xx no es error: se devuelve en la respuesta para que el worker lo clasifique.
func (c *RegistryClient) Register(ctx context.Context, idempotencyKey, documentJWS string) (*submission.RegistryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("agt: limitador de salida: %w", err)
		}
	}

	body, err := json.Marshal(registerRequest{DocumentJWS: documentJWS})
	if err != nil {
		return nil, fmt.Errorf("agt: serializar request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+registerPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agt: construir request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agt: POST %s: %w", registerPath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("agt: leer respuesta: %w", err)
	}
	return &submission.RegistryResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

var _ submission.RegistryClient = (*RegistryClient)(nil)
