package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"xviarchive/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive tool API over HTTP",
		Long: `Serve exposes scanning, classification and actions over HTTP so a
presentation layer can drive the tool. Progress is polled from
/v0/tasks/{id}/messages; only one task runs at a time. Prometheus metrics
are on /metrics. Set server.jwt_secret to require bearer tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, settings, err := newEngine()
			if err != nil {
				return err
			}
			setupLogging(settings)

			if addr == "" {
				addr = settings.Server.Addr
			}
			handler := server.New(server.Config{
				Engine:    eng,
				JWTSecret: settings.Server.JWTSecret,
			})
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			slog.Info("serving", "addr", addr)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr from settings)")
	return cmd
}
