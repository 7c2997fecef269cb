package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/jenesi-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		return server.New(s.chat).ListenAndServe(ctx, addr)
	},
}
