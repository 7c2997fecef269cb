package main

import (
	"github.com/spf13/cobra"

	"github.com/comigor/jenesi-go/internal/tui"
)

var chatLogFile string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := logTo(chatLogFile)
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return tui.Run(cmd.Context(), s.chat)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "jenesi.log", "where to write logs while the UI is open")
}
