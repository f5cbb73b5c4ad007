// Package cli comandos del cliente offline (cmd/client).
package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jhoicas/efactura-agt/internal/application/offline"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/apiclient"
	"github.com/jhoicas/efactura-agt/internal/infrastructure/sqlite"
	"github.com/jhoicas/efactura-agt/pkg/config"
)

// Formatos de salida.
var validFormats = []string{"text", "json"}

// RootOptions flags globales. Los valores por defecto salen de la configuración (CLIENT_*).
type RootOptions struct {
	APIURL            string
	DBPath            string
	Format            string
	Timeout           time.Duration
	ReplayConcurrency int
	SyncInterval      time.Duration
	HealthInterval    time.Duration
	Log               zerolog.Logger
}

// NewRootCommand construye el comando raíz "efactura".
func NewRootCommand(cfg config.ClientConfig, log zerolog.Logger) *cobra.Command {
	opts := &RootOptions{
		ReplayConcurrency: cfg.ReplayConcurrency,
		SyncInterval:      cfg.SyncInterval,
		HealthInterval:    cfg.HealthInterval,
		Log:               log,
	}

	cmd := &cobra.Command{
		Use:   "efactura",
		Short: "Cliente de emisión con buffer offline",
		Long: `Emite facturas contra el API. Sin conexión, la emisión queda en un buffer
local (SQLite) y se reenvía con la misma clave de idempotencia al recuperar la red.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("formato %q inválido: use uno de %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", cfg.APIURL, "URL base del API")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", cfg.DBPath, "ruta del buffer offline (SQLite)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "formato de salida (text|json)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "timeout por llamada al API")

	cmd.AddCommand(NewIssueCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDiscardCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	return cmd
}

// session recursos abiertos por un comando.
type session struct {
	store  *sqlite.Store
	api    *apiclient.Client
	buffer *offline.Buffer
}

func (o *RootOptions) open() (*session, error) {
	st, err := sqlite.Open(o.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "abrir buffer offline", err)
	}
	api := apiclient.New(o.APIURL, o.Timeout)
	return &session{
		store:  st,
		api:    api,
		buffer: offline.NewBuffer(st, api, o.ReplayConcurrency, o.Log),
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
