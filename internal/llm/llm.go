package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/jenesi-go/internal/config"
)

// DefaultSystemPrompt is used when the configuration does not set one.
const DefaultSystemPrompt = "You are JENESI Autobot, a highly advanced AI interface designed for complex problem solving across Tech, Science, and Business domains.\n\n" +
	"Capabilities & Persona:\n" +
	"1. **Intent Recognition**: Immediately identify if the user needs Code (Python/React), Real-time Data (Stocks/News), or Creative Content.\n" +
	"2. **Grounded Reality**: Use your search tool to provide up-to-date information when asked about current events or specific technical documentation.\n" +
	"3. **Formatting**: Always use Markdown. Use fenced code blocks with language tags for code.\n" +
	"4. **Tone**: Futuristic, precise, professional, yet helpful. You are the bridge between human intent and digital action."

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return openai.NewClientWithConfig(config)
}

// NewGenerator builds the text generator named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	switch cfg.Provider {
	case "gemini", "":
		client, err := NewGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return &Gemini{Client: client, Model: cfg.Model, SystemPrompt: prompt, Search: cfg.Search}, nil
	case "openai":
		return &OpenAI{Client: NewClient(cfg), Model: cfg.Model, SystemPrompt: prompt}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewSynthesizer builds the speech synthesizer named by cfg.Provider. The
// API credentials come from the llm section.
func NewSynthesizer(ctx context.Context, cfg config.SpeechConfig, llmCfg config.LLMConfig) (Synthesizer, error) {
	switch cfg.Provider {
	case "gemini", "":
		client, err := NewGeminiClient(ctx, llmCfg.APIKey)
		if err != nil {
			return nil, err
		}
		return &GeminiSpeech{Client: client, Model: cfg.Model, Voice: cfg.Voice}, nil
	case "openai":
		return &OpenAISpeech{Client: NewClient(llmCfg), Model: cfg.Model, Voice: cfg.Voice}, nil
	default:
		return nil, fmt.Errorf("unsupported speech provider %q", cfg.Provider)
	}
}
