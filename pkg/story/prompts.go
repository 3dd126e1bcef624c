package story

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"storyboard/pkg/queue"
	"storyboard/pkg/recovery"
	"storyboard/pkg/schema"
)

// Prompts returns a copy of scenes with Prompt and NegativePrompt filled in, in scene order.
// Scenes skipped under PolicySkip keep an empty prompt and are reported as failures.
func (p *Pipeline) Prompts(ctx context.Context, profile schema.CharacterProfile, scenes []schema.Scene) ([]schema.Scene, []schema.Failure, error) {
	return p.prompts(ctx, profile, scenes, nil)
}

func (p *Pipeline) prompts(ctx context.Context, profile schema.CharacterProfile, scenes []schema.Scene, emit emitter) ([]schema.Scene, []schema.Failure, error) {
	out := slices.Clone(scenes)
	var failures []schema.Failure

	apply := func(i int, sp schema.ScenePrompt, err error) error {
		if err != nil {
			f, ok := p.tolerate("prompt", out[i].ID, err)
			if !ok {
				return fmt.Errorf("scene %d prompt: %w", out[i].ID, err)
			}
			failures = append(failures, f)
			emit.emit(Event{Kind: EventFailure, Failure: &f})
			return nil
		}
		out[i].Prompt = strings.TrimSpace(sp.Prompt)
		out[i].NegativePrompt = strings.TrimSpace(sp.NegativePrompt)
		scene := out[i]
		emit.emit(Event{Kind: EventPrompt, Index: i + 1, Total: len(out), Scene: &scene})
		return nil
	}

	var err error
	if p.opts.Workers > 1 && len(out) > 1 {
		err = p.fanOut(ctx, profile, out, apply)
	} else {
		for i := range out {
			sp, genErr := p.generatePrompt(ctx, profile, out[i])
			if err = apply(i, sp, genErr); err != nil {
				break
			}
		}
	}
	return out, failures, err
}

// fanOut generates prompts on a worker queue and applies results in scene order.
func (p *Pipeline) fanOut(ctx context.Context, profile schema.CharacterProfile, scenes []schema.Scene, apply func(int, schema.ScenePrompt, error) error) error {
	q := queue.New(p.opts.Workers, len(scenes), func(ctx context.Context, s schema.Scene) (schema.ScenePrompt, error) {
		return p.generatePrompt(ctx, profile, s)
	})
	q.Start()
	defer q.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type pending struct {
		resp chan schema.ScenePrompt
		errs chan error
	}
	waits := make([]pending, len(scenes))
	for i, s := range scenes {
		resp, errs, err := q.Add(ctx, s)
		if err != nil {
			return fmt.Errorf("queue scene %d: %w", s.ID, err)
		}
		waits[i] = pending{resp: resp, errs: errs}
	}

	for i, w := range waits {
		sp, err := queue.Wait(ctx, w.resp, w.errs)
		if err := apply(i, sp, err); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) generatePrompt(ctx context.Context, profile schema.CharacterProfile, scene schema.Scene) (schema.ScenePrompt, error) {
	format := schema.ScenePromptResponseFormat()
	raw, err := p.infer(ctx, "prompt", &format, scenePrompt, promptRequest(profile, scene, p.opts.Style))
	if err != nil {
		return schema.ScenePrompt{}, err
	}
	return recovery.Decode[schema.ScenePrompt](ctx, p.repairer("prompt", promptShape, &format), raw)
}

func promptRequest(profile schema.CharacterProfile, scene schema.Scene, style string) string {
	var sb strings.Builder
	sb.WriteString("Characters:\n")
	if chars := profile.String(); chars != "" {
		sb.WriteString(chars)
	} else {
		sb.WriteString("(none)")
	}
	fmt.Fprintf(&sb, "\n\nScene %d", scene.ID)
	if scene.Summary != "" {
		sb.WriteString(" summary: ")
		sb.WriteString(scene.Summary)
	}
	sb.WriteString("\nScene text:\n")
	sb.WriteString(scene.Text)
	if style = strings.TrimSpace(style); style != "" {
		sb.WriteString("\n\nStyle: ")
		sb.WriteString(style)
	}
	return sb.String()
}
