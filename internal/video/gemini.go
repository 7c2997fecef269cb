package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"google.golang.org/genai"
)

var _ Backend = (*GeminiBackend)(nil)

// GeminiBackend generates videos with Veo through the Gemini API.
type GeminiBackend struct {
	Client *genai.Client
	Model  string
	// APIKey authorizes the download of the finished file.
	APIKey string
	HTTP   *http.Client
}

func (b *GeminiBackend) Start(ctx context.Context, prompt string) (*genai.GenerateVideosOperation, error) {
	model := b.Model
	if model == "" {
		model = DefaultModel
	}
	return b.Client.Models.GenerateVideos(ctx, model, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    "16:9",
	})
}

func (b *GeminiBackend) Poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return b.Client.Operations.GetVideosOperation(ctx, op, nil)
}

func (b *GeminiBackend) Download(ctx context.Context, uri string, w io.Writer) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("parse video uri: %w", err)
	}
	if b.APIKey != "" {
		q := u.Query()
		q.Set("key", b.APIKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	client := b.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download video bytes: %s", resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
