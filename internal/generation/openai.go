package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragline/ragline/internal/assembler"
	"github.com/ragline/ragline/internal/ragerr"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = "gpt-4o-mini"

// OpenAIGenerator produces completions via an OpenAI-compatible endpoint.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator. baseURL may be empty to use
// the default endpoint; model may be empty to use DefaultChatModel.
func NewOpenAIGenerator(apiKey, baseURL, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation: api key required")
	}
	if model == "" {
		model = DefaultChatModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

var _ Generator = (*OpenAIGenerator)(nil)

// Generate returns the full completion for query grounded in assembled.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, assembled *assembler.AssembledContext) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(query, assembled))
	if err != nil {
		return "", ragerr.Transient("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", ragerr.Integrity("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream invokes fn for each completion fragment as it arrives.
func (g *OpenAIGenerator) Stream(ctx context.Context, query string, assembled *assembler.AssembledContext, fn func(fragment string) error) error {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(query, assembled))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}
		if err := fn(fragment); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return ragerr.Transient("chat completion stream", err)
	}
	return nil
}

func (g *OpenAIGenerator) params(query string, assembled *assembler.AssembledContext) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildPrompt(assembled)),
			openai.UserMessage(query),
		},
	}
}
