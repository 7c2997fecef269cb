package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/config"
	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/llm"
	"github.com/comigor/jenesi-go/internal/logger"
	"github.com/comigor/jenesi-go/internal/playback"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "jenesi",
	Short:         "JENESI Autobot conversation client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd, chatCmd, mcpCmd, videoCmd)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

// session is the wired conversation shared by the serve, chat and mcp commands.
type session struct {
	cfg   *config.Config
	store history.Store
	chat  *chat.Controller
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	gen, err := llm.NewGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("initialize llm: %w", err)
	}

	store := history.Open(cfg.History.Driver, cfg.History.Path)
	log := history.NewLog(store, cfg.History.ConversationID)
	log.Load(ctx)

	opts := []chat.Option{chat.WithBatchSize(cfg.History.BatchSize)}
	synth, err := llm.NewSynthesizer(ctx, cfg.Speech, cfg.LLM)
	if err != nil {
		logger.L.Warn("speech disabled", "error", err)
	} else {
		opts = append(opts, chat.WithPlayback(playback.New(synth, playback.ExecPlayer{Command: cfg.Speech.Player})))
	}

	return &session{cfg: cfg, store: store, chat: chat.New(gen, log, opts...)}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		logger.L.Error("failed to close history store", "error", err)
	}
}

// logTo sends log lines to a file, for commands that own the terminal.
func logTo(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(f)
	return f, nil
}
