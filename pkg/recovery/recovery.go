package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"storyboard/pkg/utils"
)

var (
	// ErrRecovery matches any *RecoveryError.
	ErrRecovery = errors.New("json recovery failed")
	// ErrNoJSON is returned by Parse when the text holds no bracketed substring.
	ErrNoJSON = errors.New("no json value found")
)

// RecoveryError reports that strict parsing, bracket extraction and every repair
// attempt failed. Raw is the original model output, kept for diagnostics.
type RecoveryError struct {
	Raw      string
	Attempts int
	Err      error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("json recovery failed after %d repair attempt(s): %v", e.Attempts, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

func (e *RecoveryError) Is(target error) bool { return target == ErrRecovery }

// Validator is implemented by decoded values that can reject a syntactically valid reply.
type Validator interface {
	Validate() error
}

// Fixer asks the completion service to reformat invalid text into valid JSON.
type Fixer interface {
	Fix(ctx context.Context, raw string) (string, error)
}

// FixerFunc adapts a function to Fixer.
type FixerFunc func(ctx context.Context, raw string) (string, error)

func (f FixerFunc) Fix(ctx context.Context, raw string) (string, error) { return f(ctx, raw) }

// Repairer wraps Parse with a bounded number of model-assisted repair attempts.
type Repairer struct {
	Fixer Fixer
	// MaxAttempts is the number of repair requests. Zero means one; negative disables repair.
	MaxAttempts int
}

func (r *Repairer) attempts() int {
	if r == nil || r.Fixer == nil || r.MaxAttempts < 0 {
		return 0
	}
	if r.MaxAttempts == 0 {
		return 1
	}
	return r.MaxAttempts
}

// Decode parses raw into T, asking the Fixer to reformat the original text when
// parsing fails. The repaired reply must parse strictly once code fences are removed.
func Decode[T any](ctx context.Context, r *Repairer, raw string) (T, error) {
	v, err := Parse[T](raw)
	if err == nil {
		return v, nil
	}
	log.Debug("model output is not valid JSON", "error", err, "output", utils.LimitStr(raw, 200))

	n := r.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		fixed, fixErr := r.Fixer.Fix(ctx, raw)
		if fixErr != nil {
			return v, fmt.Errorf("json repair request: %w", fixErr)
		}

		var parsed T
		if parsed, err = strict[T](utils.CleanJSON(utils.StripThink(fixed))); err == nil {
			log.Debug("json repaired by model", "attempt", attempt)
			return parsed, nil
		}
		log.Warn("json repair attempt failed", "attempt", attempt, "error", err)
	}

	var zero T
	return zero, &RecoveryError{Raw: raw, Attempts: n, Err: err}
}

// Parse strictly unmarshals raw. When that fails it extracts the outermost
// [..] or {..} substring and strictly unmarshals that instead.
func Parse[T any](raw string) (T, error) {
	v, err := strict[T](raw)
	if err == nil {
		return v, nil
	}

	candidates := Extract(utils.StripThink(raw))
	if len(candidates) == 0 {
		return v, errors.Join(err, ErrNoJSON)
	}
	for _, c := range candidates {
		if v, err = strict[T](c); err == nil {
			return v, nil
		}
	}
	return v, err
}

// Extract returns the first-opener-to-last-closer substrings for arrays and objects,
// ordered by which opener appears first in s.
func Extract(s string) []string {
	type span struct{ start, end int }
	var spans []span
	for _, pair := range [...][2]string{{"[", "]"}, {"{", "}"}} {
		i := strings.Index(s, pair[0])
		j := strings.LastIndex(s, pair[1])
		if i != -1 && j > i {
			spans = append(spans, span{i, j + 1})
		}
	}
	if len(spans) == 2 && spans[1].start < spans[0].start {
		spans[0], spans[1] = spans[1], spans[0]
	}
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end])
	}
	return out
}

func strict[T any](s string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return v, err
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return v, err
		}
	}
	return v, nil
}
