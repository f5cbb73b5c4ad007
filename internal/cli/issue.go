package cli

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/efactura-agt/internal/application/offline"
)

// IssueResult salida del comando issue.
type IssueResult struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Queued         bool            `json:"queued"`
	PendingID      int64           `json:"pendingId,omitempty"`
	StatusCode     int             `json:"statusCode,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
}

// NewIssueCommand emite una factura desde un archivo JSON (o "-" para stdin).
func NewIssueCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Emitir una factura (queda en el buffer si no hay conexión)",
		Example: `  efactura issue --file factura.json
  cat factura.json | efactura issue --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, file)
			if err != nil {
				return WrapExitError(ExitCommandError, "leer payload", err)
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			client := offline.NewClient(s.api, s.buffer, opts.Log)
			res, err := client.Issue(cmd.Context(), payload)
			var apiErr *offline.APIError
			switch {
			case errors.As(err, &apiErr):
				out := IssueResult{IdempotencyKey: res.IdempotencyKey, StatusCode: apiErr.StatusCode, Response: asJSON(apiErr.Body)}
				_ = render(cmd, opts, out)
				return WrapExitError(ExitFailure, "el API rechazó la emisión", err)
			case err != nil:
				return WrapExitError(ExitCommandError, "emitir", err)
			}

			out := IssueResult{IdempotencyKey: res.IdempotencyKey, Queued: res.Queued, StatusCode: res.StatusCode, Response: asJSON(res.Body)}
			if res.Pending != nil {
				out.PendingID = res.Pending.ID
			}
			return render(cmd, opts, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "archivo JSON con la factura (\"-\" = stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readPayload(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

func asJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

func render(cmd *cobra.Command, opts *RootOptions, r IssueResult) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return printJSON(w, r)
	}
	switch {
	case r.Queued:
		printf(w, "Sin conexión: emisión guardada en el buffer (id %d, clave %s)\n", r.PendingID, r.IdempotencyKey)
	case r.StatusCode >= 200 && r.StatusCode < 300:
		printf(w, "Emitida (HTTP %d, clave %s)\n%s\n", r.StatusCode, r.IdempotencyKey, r.Response)
	default:
		printf(w, "Rechazada (HTTP %d, clave %s)\n%s\n", r.StatusCode, r.IdempotencyKey, r.Response)
	}
	return nil
}
