package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"
)

// Throttled spaces calls to the wrapped Inferencer at least Delay apart.
type Throttled struct {
	next    Inferencer
	limiter *rate.Limiter
}

// Throttle wraps inf so consecutive calls are at least delay apart. A non-positive
// delay returns inf unchanged.
func Throttle(inf Inferencer, delay time.Duration) Inferencer {
	if delay <= 0 {
		return inf
	}
	return &Throttled{next: inf, limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

func (t *Throttled) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return t.next.Infer(ctx, params, system, user)
}
