package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"storyboard/pkg/chunk"
	"storyboard/pkg/inference"
	"storyboard/pkg/story"
)

// Config holds everything needed to build an Inferencer and a story.Pipeline.
type Config struct {
	Provider  string
	OpenAIKey string
	GroqKey   string
	GeminiKey string
	// APIKey overrides the provider specific key when set.
	APIKey  string
	Model   string
	BaseURL string

	Port      string
	OutputDir string
	LogLevel  string

	ChunkSize     int
	Overlap       int
	ProfileChunks int
	SplitMode     string
	Workers       int
	Delay         time.Duration
	OnFailure     string
	MaxRepairs    int
	Temperature   float64
	MaxTokens     int64
	Style         string
	Structured    bool
}

// AutoOverlap sizes the chunk overlap from the chunk size.
const AutoOverlap = -1

func Default() Config {
	opts := story.DefaultOptions()
	return Config{
		Provider:      inference.ProviderOpenAI,
		Port:          "8080",
		OutputDir:     "storyboards",
		LogLevel:      "info",
		ChunkSize:     opts.ChunkSize,
		Overlap:       AutoOverlap,
		ProfileChunks: opts.ProfileChunks,
		SplitMode:     string(opts.Mode),
		Workers:       opts.Workers,
		OnFailure:     string(opts.OnFailure),
		MaxRepairs:    opts.MaxRepairs,
		Temperature:   opts.Temperature,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromEnv(os.LookupEnv)
}

// FromEnv overlays the variables found through lookup onto Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	e := env{lookup: lookup}

	e.str("LLM_PROVIDER", &c.Provider)
	e.str("OPENAI_API_KEY", &c.OpenAIKey)
	e.str("GROQ_API_KEY", &c.GroqKey)
	e.str("GEMINI_API_KEY", &c.GeminiKey)
	e.str("LLM_MODEL", &c.Model)
	e.str("LLM_BASE_URL", &c.BaseURL)
	e.str("PORT", &c.Port)
	e.str("OUTPUT_DIR", &c.OutputDir)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.integer("CHUNK_SIZE", &c.ChunkSize)
	e.integer("CHUNK_OVERLAP", &c.Overlap)
	e.integer("PROFILE_CHUNKS", &c.ProfileChunks)
	e.str("SPLIT_MODE", &c.SplitMode)
	e.integer("WORKERS", &c.Workers)
	e.duration("REQUEST_DELAY", &c.Delay)
	e.str("ON_FAILURE", &c.OnFailure)
	e.integer("MAX_REPAIRS", &c.MaxRepairs)
	e.float("TEMPERATURE", &c.Temperature)
	e.int64("MAX_TOKENS", &c.MaxTokens)
	e.str("STYLE", &c.Style)
	e.boolean("STRUCTURED_OUTPUT", &c.Structured)

	return c, errors.Join(e.errs...)
}

// RegisterFlags binds command line flags to c, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Provider, "provider", c.Provider, "Completion provider: openai, groq or gemini")
	fs.StringVar(&c.Model, "model", c.Model, "Model name (default depends on the provider)")
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "API key (overrides the provider's environment variable)")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "OpenAI-compatible endpoint, e.g. a local server")
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "Maximum characters per chunk body")
	fs.IntVar(&c.Overlap, "overlap", c.Overlap, "Characters of the previous chunk repeated as context (-1 uses a tenth of -chunk-size, at most 200)")
	fs.IntVar(&c.ProfileChunks, "profile-chunks", c.ProfileChunks, "Leading chunks sampled for the character profile (0 uses the whole story)")
	fs.StringVar(&c.SplitMode, "mode", c.SplitMode, "Scene split mode: whole or chunked")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Concurrent prompt requests")
	fs.DurationVar(&c.Delay, "delay", c.Delay, "Minimum delay between requests")
	fs.StringVar(&c.OnFailure, "on-error", c.OnFailure, "Unrecoverable reply policy: abort or skip")
	fs.IntVar(&c.MaxRepairs, "max-repairs", c.MaxRepairs, "JSON repair requests per reply (negative disables)")
	fs.Float64Var(&c.Temperature, "temperature", c.Temperature, "Sampling temperature")
	fs.Int64Var(&c.MaxTokens, "max-tokens", c.MaxTokens, "Maximum output tokens per request (0 uses the provider default)")
	fs.StringVar(&c.Style, "style", c.Style, "Art style appended to every image prompt")
	fs.BoolVar(&c.Structured, "structured", c.Structured, "Request JSON schema constrained replies")
	fs.StringVar(&c.OutputDir, "out", c.OutputDir, "Output directory")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
}

// Key returns the API key for the selected provider.
func (c Config) Key() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case inference.ProviderGroq:
		return c.GroqKey
	case inference.ProviderGemini:
		return c.GeminiKey
	default:
		return c.OpenAIKey
	}
}

func (c Config) Settings() inference.Settings {
	return inference.Settings{
		Provider: strings.ToLower(strings.TrimSpace(c.Provider)),
		APIKey:   c.Key(),
		Model:    c.Model,
		BaseURL:  c.BaseURL,
	}
}

// Options converts c into pipeline options. Call Validate first.
func (c Config) Options() story.Options {
	mode, _ := story.ParseSplitMode(c.SplitMode)
	policy, _ := story.ParsePolicy(c.OnFailure)
	overlap := c.Overlap
	if overlap == AutoOverlap {
		overlap = chunk.OverlapFor(c.ChunkSize)
	}
	return story.Options{
		ChunkSize:     c.ChunkSize,
		Overlap:       overlap,
		ProfileChunks: c.ProfileChunks,
		Mode:          mode,
		Workers:       c.Workers,
		Delay:         c.Delay,
		OnFailure:     policy,
		MaxRepairs:    c.MaxRepairs,
		Temperature:   c.Temperature,
		MaxTokens:     c.MaxTokens,
		Style:         strings.TrimSpace(c.Style),
		Structured:    c.Structured,
	}
}

func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c Config) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	switch provider {
	case inference.ProviderOpenAI, inference.ProviderGroq, inference.ProviderGemini:
	default:
		return fmt.Errorf("%w: %q", inference.ErrUnknownProvider, c.Provider)
	}
	if c.Key() == "" && (c.BaseURL == "" || provider == inference.ProviderGemini) {
		return fmt.Errorf("%w for %s (set %s or pass -api-key)", inference.ErrMissingAPIKey, provider, keyVar(provider))
	}
	if _, err := story.ParseSplitMode(c.SplitMode); err != nil {
		return err
	}
	if _, err := story.ParsePolicy(c.OnFailure); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0 (default %d)", chunk.DefaultMaxChars)
	}
	if c.MaxTokens < 0 {
		return errors.New("max tokens must be >= 0")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Port != "" {
		if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
			return fmt.Errorf("invalid port %q", c.Port)
		}
	}
	return c.Options().Validate()
}

func keyVar(provider string) string {
	switch provider {
	case inference.ProviderGroq:
		return "GROQ_API_KEY"
	case inference.ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
