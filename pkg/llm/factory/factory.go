package factory

import (
	"fmt"

	"ai-studynotes-be/pkg/llm"
	"ai-studynotes-be/pkg/llm/ollama"
	"ai-studynotes-be/pkg/llm/openai"
)

// NewLLMProvider selects the configured backend.
// provider: "openai" | "ollama"
func NewLLMProvider(provider, model, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch provider {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return openai.NewOpenAIProvider(apiKey, baseURL, model), nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", provider)
	}
}
