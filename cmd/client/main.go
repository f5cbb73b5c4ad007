// Cliente de emisión con buffer offline.
//
// Uso:
//
//	efactura issue --file factura.json
//	efactura pending
//	efactura replay
//	efactura sync
//
// La configuración se toma de CLIENT_* (ver pkg/config); los flags la sobreescriben.
package main

import (
	"fmt"
	"os"

	"github.com/jhoicas/efactura-agt/internal/cli"
	"github.com/jhoicas/efactura-agt/pkg/config"
	"github.com/jhoicas/efactura-agt/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(cli.ExitCommandError)
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "efactura-client",
		Out:     os.Stderr,
	})

	cmd := cli.NewRootCommand(cfg.Client, log.Component("offline"))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
