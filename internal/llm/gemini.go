package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return client, nil
}

var _ Generator = (*Gemini)(nil)

// Gemini streams replies from the Gemini API.
type Gemini struct {
	Client       *genai.Client
	Model        string
	SystemPrompt string
	// Search enables Google Search grounding.
	Search bool
}

func (g *Gemini) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if g.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: g.SystemPrompt}}}
	}
	if g.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// Send starts the stream and waits for the first chunk, so a rejected request
// surfaces here rather than mid-stream.
func (g *Gemini) Send(ctx context.Context, history []Turn, newText string) (Stream, error) {
	contents := geminiContents(history, newText)
	s := newGeminiStream(g.Client.Models.GenerateContentStream(ctx, g.Model, contents, g.config()))
	if err := s.prime(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func geminiContents(history []Turn, newText string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := "user"
		if t.Role == RoleModel {
			role = "model"
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, &genai.Part{Text: t.Text})
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Text}}})
	}
	if n := len(contents); n > 0 && contents[n-1].Role == "user" {
		contents[n-1].Parts = append(contents[n-1].Parts, &genai.Part{Text: newText})
		return contents
	}
	return append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: newText}}})
}

type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending string
	err     error
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

// prime pulls until the first text or the end of the stream.
func (s *geminiStream) prime() error {
	text, err := s.pull()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	s.pending, s.err = text, err
	return nil
}

func (s *geminiStream) Recv() (string, error) {
	if s.pending != "" {
		text := s.pending
		s.pending = ""
		return text, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return s.pull()
}

func (s *geminiStream) pull() (string, error) {
	for {
		chunk, err, ok := s.next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if text := chunkText(chunk); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func chunkText(chunk *genai.GenerateContentResponse) string {
	if chunk == nil || len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range chunk.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

var _ Synthesizer = (*GeminiSpeech)(nil)

// GeminiSpeech synthesizes speech with a Gemini TTS model.
type GeminiSpeech struct {
	Client *genai.Client
	Model  string
	Voice  string
}

func (g *GeminiSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: text}}},
	}, &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.Voice},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if pcm := audioData(resp); len(pcm) > 0 {
		return pcm, nil
	}
	return nil, errors.New("no audio data received")
}

func audioData(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData.Data
		}
	}
	return nil
}
