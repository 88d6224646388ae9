package openai

import (
	"context"
	"fmt"

	"ai-studynotes-be/pkg/llm"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIProvider implements llm.LLMProvider using the official openai-go SDK
// (chat completions). Works against any OpenAI-compatible endpoint via BaseURL.
type OpenAIProvider struct {
	ModelName string
	client    openaisdk.Client
}

var _ llm.LLMProvider = &OpenAIProvider{}

func NewOpenAIProvider(apiKey, baseURL, modelName string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		ModelName: modelName,
		client:    openaisdk.NewClient(opts...),
	}
}

func (p *OpenAIProvider) buildParams(history []llm.Message, opts []llm.Option) openaisdk.ChatCompletionNewParams {
	options := llm.ApplyOptions(llm.Options{Temperature: 0.7, TopP: 1.0}, opts)

	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "system":
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		case "assistant", "model":
			msgs = append(msgs, openaisdk.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		}
	}

	model := p.ModelName
	if options.Model != "" {
		model = options.Model
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(model),
		Messages:    msgs,
		Temperature: openaisdk.Float(options.Temperature),
		TopP:        openaisdk.Float(options.TopP),
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(options.MaxTokens))
	}
	return params
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(history, opts))
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrModelUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", llm.ErrModelError)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	raw := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(history, opts))
	if err := raw.Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %v", llm.ErrModelUnavailable, err)
	}
	return &openaiStream{raw: raw}, nil
}

// openaiStream adapts the SDK's typed chunk stream to the fragment stream the
// orchestrator consumes.
type openaiStream struct {
	raw     *ssestream.Stream[openaisdk.ChatCompletionChunk]
	current string
}

func (s *openaiStream) Next() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *openaiStream) Current() string {
	return s.current
}

func (s *openaiStream) Err() error {
	if err := s.raw.Err(); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrModelError, err)
	}
	return nil
}

func (s *openaiStream) Close() error {
	return s.raw.Close()
}
