package story

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"storyboard/pkg/diff"
	"storyboard/pkg/recovery"
	"storyboard/pkg/schema"
	"storyboard/pkg/utils"
)

// Scenes whose text is at least this similar across a chunk boundary are the same scene.
const boundarySimilarity = 0.9

// minCoverage is the share of source words below which a split is logged as lossy.
const minCoverage = 0.9

type splitResult struct {
	scenes   []schema.Scene
	failures []schema.Failure
	coverage schema.Coverage
}

// Split divides text into scenes numbered 1..n in story order.
func (p *Pipeline) Split(ctx context.Context, text string) ([]schema.Scene, []schema.Failure, error) {
	res, err := p.split(ctx, text, nil)
	return res.scenes, res.failures, err
}

func (p *Pipeline) split(ctx context.Context, text string, emit emitter) (splitResult, error) {
	var res splitResult
	text = strings.TrimSpace(text)
	if p.opts.Mode == ModeWhole {
		drafts, err := p.splitOne(ctx, text, "", nil)
		if err != nil {
			f, ok := p.tolerate("split", 0, err)
			if !ok {
				return res, fmt.Errorf("split story: %w", err)
			}
			res.failures = append(res.failures, f)
			emit.emit(Event{Kind: EventFailure, Failure: &f})
			return res, nil
		}
		res.coverage = measure(1, text, drafts)
		res.scenes = schema.Renumber(drafts)
		emit.emit(Event{Kind: EventSplit, Index: 1, Total: 1})
		return res, nil
	}

	chunks := p.Chunks(text)
	var drafts []schema.SceneDraft
	for _, c := range chunks {
		unit := c.Index + 1
		got, err := p.splitOne(ctx, c.Body, c.Overlap, drafts)
		if err != nil {
			f, ok := p.tolerate("split", unit, err)
			if !ok {
				return res, fmt.Errorf("split chunk %d/%d: %w", unit, len(chunks), err)
			}
			res.failures = append(res.failures, f)
			emit.emit(Event{Kind: EventFailure, Failure: &f})
			continue
		}
		res.coverage = res.coverage.Add(measure(unit, c.Body, got))
		drafts = appendAcrossBoundary(drafts, got)
		emit.emit(Event{Kind: EventSplit, Index: unit, Total: len(chunks)})
	}
	res.scenes = schema.Renumber(drafts)
	return res, nil
}

// measure compares the words of body with the scene texts returned for it.
func measure(unit int, body string, drafts []schema.SceneDraft) schema.Coverage {
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}
	cov, err := diff.Cover(body, texts)
	if err != nil {
		log.Debug("split coverage not measured", "unit", unit, "error", err)
		return schema.Coverage{}
	}
	if cov.Ratio() < minCoverage {
		log.Warn("split dropped story text", "unit", unit, "coverage", fmt.Sprintf("%.0f%%", cov.Ratio()*100), "missing", utils.LimitStr(strings.Join(cov.Missing, " / "), 120))
	}
	return cov
}

func (p *Pipeline) splitOne(ctx context.Context, body, overlap string, previous []schema.SceneDraft) ([]schema.SceneDraft, error) {
	format := schema.SceneListResponseFormat()
	raw, err := p.infer(ctx, "split", &format, splitPrompt, splitRequest(body, overlap, previous))
	if err != nil {
		return nil, err
	}
	list, err := recovery.Decode[schema.SceneList](ctx, p.repairer("split", scenesShape, &format), raw)
	if err != nil {
		return nil, err
	}
	return list.Scenes, nil
}

func splitRequest(body, overlap string, previous []schema.SceneDraft) string {
	var sb strings.Builder
	if len(previous) > 0 {
		sb.WriteString("Scenes so far:\n")
		for i, d := range previous {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, cmp.Or(strings.TrimSpace(d.Summary), utils.LimitStr(strings.TrimSpace(d.Text), 160)))
		}
		sb.WriteByte('\n')
	}
	if overlap != "" {
		sb.WriteString("Context from the previous section (already assigned):\n")
		sb.WriteString(overlap)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Story text:\n")
	sb.WriteString(body)
	return sb.String()
}

// appendAcrossBoundary appends next to drafts, dropping a leading scene that
// repeats the last scene already collected.
func appendAcrossBoundary(drafts, next []schema.SceneDraft) []schema.SceneDraft {
	if len(drafts) == 0 || len(next) == 0 {
		return append(drafts, next...)
	}
	last, first := strings.TrimSpace(drafts[len(drafts)-1].Text), strings.TrimSpace(next[0].Text)
	if last != "" && first != "" && utils.Similarity(last, first) >= boundarySimilarity {
		log.Debug("dropping duplicate scene at chunk boundary", "text", utils.LimitStr(first, 80))
		next = next[1:]
	}
	return append(drafts, next...)
}
