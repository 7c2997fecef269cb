package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

var _ Generator = (*OpenAI)(nil)

// OpenAI streams replies from an OpenAI-compatible chat completions API.
type OpenAI struct {
	Client       OpenAIClient
	Model        string
	SystemPrompt string
}

func (o *OpenAI) Send(ctx context.Context, history []Turn, newText string) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if o.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.SystemPrompt})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: newText})

	s, err := o.Client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	return &openaiStream{s: s}, nil
}

type openaiStream struct {
	s *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if d := resp.Choices[0].Delta.Content; d != "" {
			return d, nil
		}
	}
}

func (s *openaiStream) Close() error {
	return s.s.Close()
}

var _ Synthesizer = (*OpenAISpeech)(nil)

// OpenAISpeech synthesizes raw PCM with the OpenAI speech endpoint.
type OpenAISpeech struct {
	Client OpenAIClient
	Model  string
	Voice  string
}

func (o *OpenAISpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	model := openai.SpeechModel(o.Model)
	if o.Model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(o.Voice)
	if o.Voice == "" {
		voice = openai.VoiceAlloy
	}
	resp, err := o.Client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("no audio data received")
	}
	return pcm, nil
}
