package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Inferencer is the completion-service boundary: a system and user message in, text out.
type Inferencer interface {
	Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// defaultTemperature applies when the request does not set one.
const defaultTemperature = 0.3

var (
	ErrUnknownProvider = errors.New("unknown inference provider")
	ErrMissingAPIKey   = errors.New("missing api key")
)

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL points OpenAI-compatible providers at another endpoint, e.g. a local server.
	BaseURL string
}

// New builds the Inferencer for s.Provider. An empty key is only accepted with a custom BaseURL.
func New(ctx context.Context, s Settings) (Inferencer, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if s.APIKey == "" && (s.BaseURL == "" || provider == ProviderGemini) {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case ProviderOpenAI, "":
		inf := NewOpenAIInferencer(s.APIKey, s.Model)
		if s.BaseURL != "" {
			inf.ChangeBaseURL(s.BaseURL)
		}
		return inf, nil
	case ProviderGroq:
		inf := NewGroqInferencer(s.APIKey, s.Model)
		if s.BaseURL != "" {
			inf.ChangeBaseURL(s.BaseURL)
		}
		return inf, nil
	case ProviderGemini:
		return NewGeminiInferencer(ctx, s.APIKey, s.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
}

// wantsJSON reports whether params ask for a JSON reply.
func wantsJSON(params *openai.ChatCompletionNewParams) bool {
	return params != nil && (params.ResponseFormat.OfJSONSchema != nil || params.ResponseFormat.OfJSONObject != nil)
}
