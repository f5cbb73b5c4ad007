package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jhoicas/efactura-agt/internal/application/offline"
)

// NewSyncCommand queda en primer plano vigilando la conexión y reenviando el buffer.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sincronizar en segundo plano hasta Ctrl+C",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			syncer := offline.NewSyncer(s.api, s.buffer, offline.SyncerConfig{
				HealthInterval: opts.HealthInterval,
				SyncInterval:   opts.SyncInterval,
			}, opts.Log)
			opts.Log.Info().
				Str("api", opts.APIURL).
				Dur("health_interval", opts.HealthInterval).
				Dur("sync_interval", opts.SyncInterval).
				Msg("sincronizador iniciado")
			return syncer.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&opts.HealthInterval, "health-interval", opts.HealthInterval, "intervalo de sondeo de /health")
	cmd.Flags().DurationVar(&opts.SyncInterval, "sync-interval", opts.SyncInterval, "intervalo de reenvío periódico")
	return cmd
}
