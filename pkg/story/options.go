package story

import (
	"fmt"
	"strings"
	"time"

	"storyboard/pkg/chunk"
)

type SplitMode string

const (
	// ModeWhole splits the whole story in one request.
	ModeWhole SplitMode = "whole"
	// ModeChunked issues one split request per chunk.
	ModeChunked SplitMode = "chunked"
)

// Policy decides what happens when a model reply cannot be recovered as JSON.
type Policy string

const (
	PolicyAbort Policy = "abort"
	PolicySkip  Policy = "skip"
)

type Options struct {
	ChunkSize int
	Overlap   int
	// ProfileChunks is the number of leading chunks sampled for the character profile.
	// Zero samples the whole story.
	ProfileChunks int
	Mode          SplitMode
	// Workers > 1 generates scene prompts concurrently.
	Workers int
	// Delay is the minimum spacing between completion requests.
	Delay       time.Duration
	OnFailure   Policy
	MaxRepairs  int
	Temperature float64
	MaxTokens   int64
	Style       string
	// Structured requests JSON-schema constrained replies where the provider supports them.
	Structured bool
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:     chunk.DefaultMaxChars,
		Overlap:       chunk.DefaultOverlap,
		ProfileChunks: 2,
		Mode:          ModeChunked,
		Workers:       1,
		OnFailure:     PolicyAbort,
		MaxRepairs:    1,
		Temperature:   0.3,
	}
}

func ParseSplitMode(s string) (SplitMode, error) {
	switch m := SplitMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWhole, ModeChunked:
		return m, nil
	case "":
		return ModeChunked, nil
	default:
		return "", fmt.Errorf("unknown split mode %q (want whole or chunked)", s)
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAbort, PolicySkip:
		return p, nil
	case "":
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want abort or skip)", s)
	}
}

func (o Options) Validate() error {
	if o.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be >= 1, got %d", o.ChunkSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("overlap must be >= 0, got %d", o.Overlap)
	}
	if o.Overlap >= o.ChunkSize {
		return fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", o.Overlap, o.ChunkSize)
	}
	if o.ProfileChunks < 0 {
		return fmt.Errorf("profile chunks must be >= 0, got %d", o.ProfileChunks)
	}
	if _, err := ParseSplitMode(string(o.Mode)); err != nil {
		return err
	}
	if _, err := ParsePolicy(string(o.OnFailure)); err != nil {
		return err
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", o.Workers)
	}
	if o.Delay < 0 {
		return fmt.Errorf("delay must be >= 0, got %s", o.Delay)
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", o.Temperature)
	}
	return nil
}
