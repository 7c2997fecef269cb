package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/jenesi-go/internal/llm"
	"github.com/comigor/jenesi-go/internal/video"
)

var videoCmd = &cobra.Command{
	Use:   "video <prompt>",
	Short: "Generate a video from a text prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey)
		if err != nil {
			return err
		}
		g := &video.Generator{
			Backend:      &video.GeminiBackend{Client: client, Model: cfg.Video.Model, APIKey: cfg.LLM.APIKey},
			PollInterval: cfg.Video.PollInterval,
			OutputDir:    cfg.Video.OutputDir,
		}
		out := cmd.OutOrStdout()
		path, err := g.Generate(ctx, strings.Join(args, " "), func(s video.State) {
			if s.IsGenerating {
				fmt.Fprintln(out, s.StatusMessage)
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	},
}
