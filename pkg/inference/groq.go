package inference

import (
	"cmp"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewGroqInferencer creates an inferencer for Groq's OpenAI-compatible API.
func NewGroqInferencer(apiKey string, model string) *OpenAIInferencer {
	client := openai.NewClient(
		option.WithBaseURL(groqBaseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAIInferencer{
		client: &client,
		name:   ProviderGroq,
		apiKey: apiKey,
		model:  cmp.Or(model, "llama-3.3-70b-versatile"),
	}
}
