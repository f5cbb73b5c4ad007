package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/efactura-agt/pkg/config"
)

func TestLoad_ValoresPorDefecto(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.AGT.Timeout)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, config.DefaultBackoff, cfg.Worker.Backoff)
	assert.Equal(t, 120*time.Second, cfg.Worker.ClaimTTL)
	assert.Equal(t, 60*time.Second, cfg.Worker.SignerCooldown)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoad_EnvSobrescribe(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("WORKER_BACKOFF_SECONDS", "1, 2,3")
	t.Setenv("WORKER_MAX_ATTEMPTS", "3")
	t.Setenv("AGT_REGISTRY_URL", "http://agt.local/")
	t.Setenv("WORKER_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, cfg.Worker.Backoff)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "http://agt.local", cfg.AGT.RegistryURL)
	assert.False(t, cfg.Worker.Enabled)
}

func TestLoad_BackoffInvalido(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("WORKER_BACKOFF_SECONDS", "10,abc")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_DriverDesconocido(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_ClaimTTLMenorQueLaLlamadaAlRegistro(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("AGT_TIMEOUT_SECONDS", "60")
	t.Setenv("WORKER_CLAIM_TTL_SECONDS", "90")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_CLAIM_TTL_SECONDS")
}

func TestDBConfig_DSNEscapaPassword(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/wd", DBName: "efactura", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fwd@db:5432/efactura?sslmode=disable", c.DSN())
}
