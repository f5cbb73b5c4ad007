package offline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SyncerConfig intervalos del sincronizador.
type SyncerConfig struct {
	HealthInterval time.Duration
	SyncInterval   time.Duration
}

// Syncer vigila la conectividad con el API y reenvía el buffer: al pasar de
// offline a online y, mientras hay conexión, cada SyncInterval.
type Syncer struct {
	api    API
	buffer *Buffer
	cfg    SyncerConfig
	log    zerolog.Logger
	online atomic.Bool
}

// NewSyncer construye el sincronizador.
func NewSyncer(api API, buffer *Buffer, cfg SyncerConfig, log zerolog.Logger) *Syncer {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 15 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Minute
	}
	return &Syncer{api: api, buffer: buffer, cfg: cfg, log: log}
}

// Online último estado de conectividad observado.
func (s *Syncer) Online() bool {
	return s.online.Load()
}

// Run sondea hasta que ctx se cancela. El estado inicial es offline, así que el
// primer sondeo exitoso dispara un reenvío.
func (s *Syncer) Run(ctx context.Context) error {
	healthTick := time.NewTicker(s.cfg.HealthInterval)
	defer healthTick.Stop()
	periodic := time.NewTicker(s.cfg.SyncInterval)
	defer periodic.Stop()

	s.CheckHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-healthTick.C:
			s.CheckHealth(ctx)
		case <-periodic.C:
			if s.Online() {
				s.replay(ctx, "periodic")
			}
		}
	}
}

// CheckHealth consulta /health y dispara el reenvío en la transición offline→online.
func (s *Syncer) CheckHealth(ctx context.Context) {
	err := s.api.Ping(ctx)
	up := err == nil
	was := s.online.Swap(up)
	switch {
	case up && !was:
		s.log.Info().Msg("conexión con el API restablecida")
		s.replay(ctx, "reconnect")
	case !up && was:
		s.log.Warn().Err(err).Msg("conexión con el API perdida")
	}
}

func (s *Syncer) replay(ctx context.Context, trigger string) {
	report, err := s.buffer.ReplayPending(ctx)
	switch {
	case errors.Is(err, ErrReplayInProgress):
		s.log.Debug().Str("trigger", trigger).Msg("reenvío ya en curso")
	case err != nil && ctx.Err() == nil:
		s.log.Error().Err(err).Str("trigger", trigger).Msg("reenvío del buffer falló")
	default:
		s.log.Debug().Str("trigger", trigger).Int("delivered", report.Delivered).Msg("sincronización")
	}
}
