package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/jenesi-go/internal/logger"
	"github.com/comigor/jenesi-go/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the conversation as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol.
		logger.SetOutput(os.Stderr)
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return mcpserver.Serve(s.chat)
	},
}
