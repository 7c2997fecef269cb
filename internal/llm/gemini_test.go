package llm

import (
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func textChunk(parts ...string) *genai.GenerateContentResponse {
	c := &genai.Content{Role: "model"}
	for _, p := range parts {
		c.Parts = append(c.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: c}}}
}

func seqOf(chunks []*genai.GenerateContentResponse, tail error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}

func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		text, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func TestGeminiContents_MergesRolesAndAppendsNewText(t *testing.T) {
	contents := geminiContents([]Turn{
		{Role: RoleUser, Text: "a"},
		{Role: RoleModel, Text: "b"},
		{Role: RoleUser, Text: "c"},
	}, "d")
	require.Len(t, contents, 3)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, "model", contents[1].Role)
	require.Equal(t, "user", contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	require.Equal(t, "d", contents[2].Parts[1].Text)

	only := geminiContents(nil, "hi")
	require.Len(t, only, 1)
	require.Equal(t, "hi", only[0].Parts[0].Text)
}

func TestGeminiStream_YieldsTextInOrder(t *testing.T) {
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{
		textChunk("Hel"),
		{}, // no candidates
		textChunk("lo", " world"),
	}, nil))
	require.NoError(t, s.prime())
	defer s.Close()

	got, err := drain(t, s)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []string{"Hel", "lo world"}, got)
}

func TestGeminiStream_PrimeSurfacesDispatchError(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := newGeminiStream(seqOf(nil, boom))
	require.ErrorIs(t, s.prime(), boom)
	s.Close()
}

func TestGeminiStream_MidStreamError(t *testing.T) {
	boom := errors.New("connection reset")
	s := newGeminiStream(seqOf([]*genai.GenerateContentResponse{textChunk("partial")}, boom))
	require.NoError(t, s.prime())
	defer s.Close()

	got, err := drain(t, s)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"partial"}, got)
}

func TestGeminiStream_EmptyReply(t *testing.T) {
	s := newGeminiStream(seqOf(nil, nil))
	require.NoError(t, s.prime())
	_, err := s.Recv()
	require.ErrorIs(t, err, io.EOF)
	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
	s.Close()
}

func TestAudioData(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "ignored"},
			{InlineData: &genai.Blob{MIMEType: "audio/pcm", Data: []byte{1, 2, 3, 4}}},
		}},
	}}}
	require.Equal(t, []byte{1, 2, 3, 4}, audioData(resp))
	require.Nil(t, audioData(&genai.GenerateContentResponse{}))
}
