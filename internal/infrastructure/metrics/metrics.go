// Package metrics expone las métricas Prometheus del servicio: worker de envíos,
// alarma del firmante, buffer offline del cliente y peticiones HTTP.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/efactura-agt/internal/application/offline"
	"github.com/jhoicas/efactura-agt/internal/application/submission"
)

// Config etiquetas constantes.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics colectores registrados en un Registerer.
type Metrics struct {
	attempts      *prometheus.CounterVec
	attemptTime   *prometheus.HistogramVec
	terminal      *prometheus.CounterVec
	signerFault   prometheus.Gauge
	queueDepth    prometheus.Gauge
	replays       *prometheus.CounterVec
	pending       prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

var (
	_ submission.Metrics = (*Metrics)(nil)
	_ offline.Metrics    = (*Metrics)(nil)
)

// New crea y registra los colectores. Con reg nil usa prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, cfg Config) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "efactura-agt"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	labels := prometheus.Labels{"service": service, "env": env}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "efactura_submission_attempts_total",
			Help:        "Intentos de envío al registro AGT por resultado.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		attemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "efactura_submission_attempt_duration_seconds",
			Help:        "Duración de la llamada al registro AGT.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			ConstLabels: labels,
		}, []string{"outcome"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "efactura_submission_terminal_total",
			Help:        "Entradas que terminaron por tipo (success, rejected, exhausted, signer, invoice_not_found).",
			ConstLabels: labels,
		}, []string{"kind"}),
		signerFault: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "efactura_signer_fault",
			Help:        "1 mientras el firmante no puede cargar sus credenciales.",
			ConstLabels: labels,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "efactura_submission_queue_depth",
			Help:        "Entradas listas para procesar en la cola de envíos.",
			ConstLabels: labels,
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "efactura_offline_replay_total",
			Help:        "Reenvíos del buffer offline por resultado.",
			ConstLabels: labels,
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "efactura_offline_pending",
			Help:        "Emisiones guardadas en el buffer offline.",
			ConstLabels: labels,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "efactura_http_requests_total",
			Help:        "Peticiones HTTP por ruta y status.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "efactura_http_request_duration_seconds",
			Help:        "Latencia de las peticiones HTTP.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.attempts, m.attemptTime, m.terminal, m.signerFault, m.queueDepth,
		m.replays, m.pending, m.httpRequests, m.httpDurations,
	)
	return m
}

func (m *Metrics) ObserveAttempt(outcome string, elapsed time.Duration) {
	m.attempts.WithLabelValues(outcome).Inc()
	m.attemptTime.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) IncTerminal(kind string) {
	m.terminal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetSignerFault(active bool) {
	if active {
		m.signerFault.Set(1)
		return
	}
	m.signerFault.Set(0)
}

func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ObserveReplay(result string) {
	m.replays.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

// ObserveHTTP registra una petición. route es el patrón (":id"), no la URL, para acotar la cardinalidad.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
