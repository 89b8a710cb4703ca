package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-fxhost/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control API",
		Long: `Serve builds the configured chains and exposes chain layout, levels,
spectrum, parameters and presets over HTTP until interrupted.

Example:
  fxhost serve --listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cfg, err := a.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			addr := cfg.Listen
			if listen != "" {
				addr = listen
			}

			return server.New(e).Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default: from config)")

	return cmd
}
