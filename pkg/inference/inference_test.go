package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
)

type stubInferencer struct {
	calls atomic.Int32
}

func (s *stubInferencer) Infer(context.Context, *openai.ChatCompletionNewParams, string, string) (string, error) {
	s.calls.Add(1)
	return "ok", nil
}

func TestNew_Providers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	inf, err := New(ctx, Settings{Provider: "OpenAI", APIKey: "k"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if o, ok := inf.(*OpenAIInferencer); !ok || o.Model() != "gpt-4o-mini" || o.name != ProviderOpenAI {
		t.Fatalf("openai inferencer=%#v", inf)
	}

	inf, err = New(ctx, Settings{Provider: "groq", APIKey: "k", Model: "mixtral"})
	if err != nil {
		t.Fatalf("groq: %v", err)
	}
	if o, ok := inf.(*OpenAIInferencer); !ok || o.Model() != "mixtral" || o.name != ProviderGroq {
		t.Fatalf("groq inferencer=%#v", inf)
	}

	if _, err := New(ctx, Settings{Provider: "openai", BaseURL: "http://localhost:1234/v1"}); err != nil {
		t.Fatalf("keyless local endpoint: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := New(ctx, Settings{Provider: "openai"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v, want ErrMissingAPIKey", err)
	}
	if _, err := New(ctx, Settings{Provider: "gemini", BaseURL: "http://x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v, want ErrMissingAPIKey", err)
	}
	if _, err := New(ctx, Settings{Provider: "cohere", APIKey: "k"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err=%v, want ErrUnknownProvider", err)
	}
}

func TestThrottle_ZeroDelayIsPassthrough(t *testing.T) {
	t.Parallel()

	s := &stubInferencer{}
	if got := Throttle(s, 0); got != Inferencer(s) {
		t.Fatalf("Throttle(0) wrapped the inferencer")
	}
}

func TestThrottle_SpacesCalls(t *testing.T) {
	t.Parallel()

	s := &stubInferencer{}
	inf := Throttle(s, 40*time.Millisecond)

	start := time.Now()
	for range 3 {
		if _, err := inf.Infer(context.Background(), nil, "sys", "user"); err != nil {
			t.Fatalf("Infer: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("3 calls took %s, want at least ~80ms", elapsed)
	}
	if s.calls.Load() != 3 {
		t.Fatalf("calls=%d", s.calls.Load())
	}
}

func TestThrottle_ContextCancelled(t *testing.T) {
	t.Parallel()

	s := &stubInferencer{}
	inf := Throttle(s, time.Hour)
	if _, err := inf.Infer(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := inf.Infer(ctx, nil, "", ""); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if s.calls.Load() != 1 {
		t.Fatalf("calls=%d, want 1", s.calls.Load())
	}
}

func TestWantsJSON(t *testing.T) {
	t.Parallel()

	if wantsJSON(nil) || wantsJSON(&openai.ChatCompletionNewParams{}) {
		t.Fatalf("wantsJSON true without response format")
	}
	p := &openai.ChatCompletionNewParams{
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{},
		},
	}
	if !wantsJSON(p) {
		t.Fatalf("wantsJSON false with json schema")
	}
}

func TestOpenAIInferencer_SendsExplicitZeroTemperature(t *testing.T) {
	t.Parallel()

	temps := make(chan any, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		temps <- body["temperature"]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	inf := NewOpenAIInferencer("k", "")
	inf.ChangeBaseURL(srv.URL)

	if _, err := inf.Infer(t.Context(), &openai.ChatCompletionNewParams{Temperature: openai.Float(0)}, "sys", "user"); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := <-temps; got != float64(0) {
		t.Fatalf("temperature=%v, want 0", got)
	}

	if _, err := inf.Infer(t.Context(), nil, "sys", "user"); err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got := <-temps; got != defaultTemperature {
		t.Fatalf("temperature=%v, want %v", got, defaultTemperature)
	}
}
