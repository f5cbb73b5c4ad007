package cli

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jhoicas/efactura-agt/internal/domain"
)

// NewReplayCommand reenvía el buffer una vez. Sale con 1 si alguna entrada quedó sin reenviar.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Reenviar ahora las emisiones pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.buffer.ReplayPending(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "reenviar", err)
			}
			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				if err := printJSON(w, report); err != nil {
					return err
				}
			} else {
				printf(w, "Reenviadas: %d  Fallidas: %d  Sin intentar: %d\n", report.Delivered, report.Failed, report.Skipped)
			}
			if report.Failed > 0 || report.Skipped > 0 {
				return &ExitError{Code: ExitFailure, Message: "quedaron emisiones en el buffer"}
			}
			return nil
		},
	}
}

// NewDiscardCommand elimina a mano una entrada del buffer (p. ej. una que el API rechaza siempre).
func NewDiscardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Descartar una emisión del buffer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "id inválido", err)
			}
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.buffer.Discard(cmd.Context(), id); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return WrapExitError(ExitCommandError, "no existe la entrada "+args[0], err)
				}
				return WrapExitError(ExitCommandError, "descartar", err)
			}
			printf(cmd.OutOrStdout(), "Entrada %d descartada\n", id)
			return nil
		},
	}
}
