package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Role of a Turn as understood by the generation backends.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role Role
	Text string
}

// Stream yields incremental reply text. Recv returns io.EOF once the reply is
// complete; any other error aborts the stream.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Generator opens a streamed reply to newText given the prior history.
type Generator interface {
	Send(ctx context.Context, history []Turn, newText string) (Stream, error)
}

// Synthesizer turns text into raw PCM (24 kHz, signed 16-bit little endian, mono).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// OpenAIClient is the subset of openai.Client used here; it is easy to mock in tests.
type OpenAIClient interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}
