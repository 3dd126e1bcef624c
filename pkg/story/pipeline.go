package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/segmentio/ksuid"

	"storyboard/pkg/chunk"
	"storyboard/pkg/inference"
	"storyboard/pkg/recovery"
	"storyboard/pkg/schema"
	"storyboard/pkg/utils"
)

var (
	ErrEmptyText = errors.New("story text is empty")
	ErrNoScenes  = errors.New("no scenes produced")
)

// Shapes shown to the model when it is asked to repair a reply.
const (
	profileShape = `{"characters": [{"name": "...", "description": "..."}]}`
	scenesShape  = `{"scenes": [{"scene": 1, "text": "...", "summary": "..."}]}`
	promptShape  = `{"prompt": "...", "negative_prompt": "..."}`
)

// Pipeline turns story text into a storyboard: a character profile, an ordered
// list of scenes and one image prompt per scene.
type Pipeline struct {
	inf  inference.Inferencer
	opts Options
}

// New returns a Pipeline over inf. A positive opts.Delay spaces every request, repairs included.
func New(inf inference.Inferencer, opts Options) *Pipeline {
	return &Pipeline{inf: inference.Throttle(inf, opts.Delay), opts: opts}
}

func (p *Pipeline) Options() Options { return p.opts }

// Chunks previews how text is packed for chunked requests.
func (p *Pipeline) Chunks(text string) []chunk.Chunk {
	return chunk.Split(text, p.opts.ChunkSize, p.opts.Overlap)
}

// Run executes profile, split and prompt generation in order. The returned
// storyboard is non-nil whenever text is non-empty, so callers can inspect the
// failures recorded before an abort.
func (p *Pipeline) Run(ctx context.Context, text string, progress func(Event)) (*schema.Storyboard, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	emit := emitter(progress)
	board := &schema.Storyboard{ID: ksuid.New().String(), CreatedAt: time.Now().UTC()}
	logger := log.With("run", board.ID)
	start := time.Now()

	chunks := p.Chunks(text)
	emit.emit(Event{Kind: EventChunks, Total: len(chunks)})
	logger.Info("storyboard run started", "chars", len([]rune(text)), "chunks", len(chunks), "mode", p.opts.Mode)

	profile, err := p.Profile(ctx, text)
	if err != nil {
		f, ok := p.tolerate("profile", 0, err)
		if !ok {
			return board, err
		}
		board.Failures = append(board.Failures, f)
		emit.emit(Event{Kind: EventFailure, Failure: &f})
	}
	board.Profile = profile
	emit.emit(Event{Kind: EventProfile, Profile: &board.Profile})
	logger.Info("character profile ready", "characters", len(profile.Characters))

	split, err := p.split(ctx, text, emit)
	board.Failures = append(board.Failures, split.failures...)
	board.Coverage = split.coverage
	if err != nil {
		return board, err
	}
	scenes := split.scenes
	if len(scenes) == 0 {
		return board, ErrNoScenes
	}
	emit.emit(Event{Kind: EventScenes, Total: len(scenes), Scenes: scenes})
	logger.Info("story split", "scenes", len(scenes), "coverage", fmt.Sprintf("%.1f%%", board.Coverage.Ratio()*100))

	segments, failures, err := p.prompts(ctx, board.Profile, scenes, emit)
	board.Failures = append(board.Failures, failures...)
	board.Segments = segments
	if err != nil {
		return board, err
	}

	logger.Info("storyboard run finished", "scenes", len(segments), "failures", len(board.Failures), "elapsed", time.Since(start).Round(time.Millisecond))
	return board, nil
}

// Profile extracts the recurring characters from a sample of text.
func (p *Pipeline) Profile(ctx context.Context, text string) (schema.CharacterProfile, error) {
	format := schema.ProfileResponseFormat()
	raw, err := p.infer(ctx, "profile", &format, profilePrompt, p.profileSample(text))
	if err != nil {
		return schema.CharacterProfile{}, err
	}

	profile, err := recovery.Decode[schema.CharacterProfile](ctx, p.repairer("profile", profileShape, &format), raw)
	if err != nil {
		return schema.CharacterProfile{}, fmt.Errorf("character profile: %w", err)
	}
	profile, dropped := profile.Normalize()
	if len(dropped) > 0 {
		log.Warn("dropped characters without a name", "count", len(dropped))
	}
	return profile, nil
}

func (p *Pipeline) profileSample(text string) string {
	text = strings.TrimSpace(text)
	if p.opts.ProfileChunks <= 0 {
		return text
	}
	chunks := p.Chunks(text)
	n := min(p.opts.ProfileChunks, len(chunks))
	return strings.Join(chunk.Bodies(chunks[:n]), chunk.Joiner)
}

func (p *Pipeline) params(format *openai.ChatCompletionNewParamsResponseFormatUnion) *openai.ChatCompletionNewParams {
	params := &openai.ChatCompletionNewParams{
		Temperature: openai.Float(p.opts.Temperature),
	}
	if p.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.opts.MaxTokens)
	}
	if p.opts.Structured && format != nil {
		params.ResponseFormat = *format
	}
	return params
}

func (p *Pipeline) infer(ctx context.Context, stage string, format *openai.ChatCompletionNewParamsResponseFormatUnion, system, user string) (string, error) {
	if log.GetLevel() <= log.DebugLevel {
		if n, err := utils.NumTokens(system + "\n" + user); err == nil {
			log.Debug("completion request", "stage", stage, "tokens", n)
		}
	}

	start := time.Now()
	out, err := p.inf.Infer(ctx, p.params(format), system, user)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			log.Error("completion request failed", "stage", stage, "status", apiErr.StatusCode, "error", err)
		}
		return "", fmt.Errorf("%s request: %w", stage, err)
	}
	log.Debug("completion response", "stage", stage, "elapsed", time.Since(start), "output", utils.LimitStr(out, 200))
	return out, nil
}

// repairer asks the model to reformat the original reply into shape.
func (p *Pipeline) repairer(stage, shape string, format *openai.ChatCompletionNewParamsResponseFormatUnion) *recovery.Repairer {
	return &recovery.Repairer{
		MaxAttempts: p.opts.MaxRepairs,
		Fixer: recovery.FixerFunc(func(ctx context.Context, raw string) (string, error) {
			user := "Expected shape:\n" + shape + "\n\nText to repair:\n" + raw
			return p.infer(ctx, stage+" repair", format, fixJSONPrompt, user)
		}),
	}
}

// tolerate reports whether err may be skipped under the failure policy. Only
// unrecoverable replies qualify; service errors always abort.
func (p *Pipeline) tolerate(stage string, unit int, err error) (schema.Failure, bool) {
	var rerr *recovery.RecoveryError
	if p.opts.OnFailure != PolicySkip || !errors.As(err, &rerr) {
		return schema.Failure{}, false
	}
	log.Warn("skipping unit with unrecoverable reply", "stage", stage, "unit", unit, "error", err)
	return schema.Failure{Stage: stage, Unit: unit, Error: err, Raw: rerr.Raw}, true
}
