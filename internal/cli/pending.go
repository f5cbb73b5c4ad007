package cli

import (
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// PendingItem entrada del buffer en la salida del comando pending.
type PendingItem struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotencyKey"`
	SeriesID       string `json:"seriesId"`
	CreatedAt      string `json:"createdAt"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"lastError,omitempty"`
}

// NewPendingCommand lista el buffer offline en orden de reenvío.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Listar emisiones pendientes de reenvío",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.buffer.Pending(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "leer buffer", err)
			}
			items := make([]PendingItem, 0, len(list))
			for _, p := range list {
				items = append(items, PendingItem{
					ID: p.ID, IdempotencyKey: p.IdempotencyKey, SeriesID: p.SeriesID,
					CreatedAt: p.CreatedAt.Format(time.RFC3339), Attempts: p.Attempts, LastError: p.LastError,
				})
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(w, items)
			}
			if len(items) == 0 {
				printf(w, "Buffer vacío\n")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			printf(tw, "ID\tCLAVE\tSERIE\tCREADA\tINTENTOS\tÚLTIMO ERROR\n")
			for _, it := range items {
				printf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", strconv.FormatInt(it.ID, 10), it.IdempotencyKey, it.SeriesID, it.CreatedAt, it.Attempts, it.LastError)
			}
			return tw.Flush()
		},
	}
}
