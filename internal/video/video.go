// Package video runs long-running text-to-video jobs and saves the result.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/comigor/jenesi-go/internal/logger"
)

const (
	DefaultModel        = "veo-3.1-fast-generate-preview"
	DefaultPollInterval = 5 * time.Second
)

// Status messages reported while a job runs.
const (
	StatusInitializing = "Initializing video generation..."
	StatusDreaming     = "Dreaming up frames (this may take a moment)..."
	StatusRendering    = "Rendering video..."
	StatusFinalizing   = "Finalizing download..."
)

var (
	ErrEmptyPrompt = errors.New("video: empty prompt")
	ErrNoVideo     = errors.New("video: no video URI returned from operation")
)

// Backend is the generation service.
type Backend interface {
	Start(ctx context.Context, prompt string) (*genai.GenerateVideosOperation, error)
	Poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	Download(ctx context.Context, uri string, w io.Writer) error
}

// State is a snapshot of a job for display.
type State struct {
	IsGenerating  bool
	StatusMessage string
	VideoPath     string
	Err           error
}

// Generator runs jobs one after another against a Backend.
type Generator struct {
	Backend      Backend
	PollInterval time.Duration
	OutputDir    string
}

// Generate starts a job for prompt, waits for it and writes the video to a
// new file under OutputDir. onState, if set, receives every state change.
func (g *Generator) Generate(ctx context.Context, prompt string, onState func(State)) (string, error) {
	report := func(s State) {
		if onState != nil {
			onState(s)
		}
	}
	fail := func(err error) (string, error) {
		logger.L.Error("video generation failed", "error", err)
		report(State{Err: err})
		return "", err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fail(ErrEmptyPrompt)
	}
	interval := g.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	report(State{IsGenerating: true, StatusMessage: StatusInitializing})
	op, err := g.Backend.Start(ctx, prompt)
	if err != nil {
		return fail(fmt.Errorf("start video generation: %w", err))
	}
	logger.L.Info("video generation started", "operation", op.Name)

	report(State{IsGenerating: true, StatusMessage: StatusDreaming})
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-timer.C:
		}
		report(State{IsGenerating: true, StatusMessage: StatusRendering})
		if op, err = g.Backend.Poll(ctx, op); err != nil {
			return fail(fmt.Errorf("poll video operation: %w", err))
		}
		timer.Reset(interval)
	}

	report(State{IsGenerating: true, StatusMessage: StatusFinalizing})
	if len(op.Error) > 0 {
		return fail(fmt.Errorf("video operation %s failed: %v", op.Name, op.Error["message"]))
	}
	uri := videoURI(op)
	if uri == "" {
		return fail(ErrNoVideo)
	}

	path, err := g.save(ctx, uri)
	if err != nil {
		return fail(err)
	}
	logger.L.Info("video saved", "path", path)
	report(State{VideoPath: path})
	return path, nil
}

func (g *Generator) save(ctx context.Context, uri string) (string, error) {
	dir := g.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, "jenesi-"+uuid.NewString()+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	if err := g.Backend.Download(ctx, uri, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("download video: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write video file: %w", err)
	}
	return path, nil
}

func videoURI(op *genai.GenerateVideosOperation) string {
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return ""
	}
	v := op.Response.GeneratedVideos[0]
	if v == nil || v.Video == nil {
		return ""
	}
	return v.Video.URI
}
