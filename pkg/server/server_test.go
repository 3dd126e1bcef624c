package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/openai/openai-go/v3"
	"github.com/segmentio/ksuid"

	"storyboard/pkg/export"
	"storyboard/pkg/inference"
	"storyboard/pkg/schema"
	"storyboard/pkg/story"
)

const lighthouse = "The keeper lit the lamp.\n\nA ship turned home."

type fakeInferencer struct {
	calls   atomic.Int32
	garbage bool
}

func (f *fakeInferencer) Infer(_ context.Context, _ *openai.ChatCompletionNewParams, _, user string) (string, error) {
	f.calls.Add(1)
	switch {
	case f.garbage:
		return "I cannot help with that.", nil
	case strings.Contains(user, "Scene text:\n"):
		return `{"prompt":"an old keeper lighting a lighthouse lamp at dusk"}`, nil
	case strings.Contains(user, "Story text:\n"):
		return `{"scenes":[{"scene":1,"text":"The keeper lit the lamp."},{"scene":2,"text":"A ship turned home."}]}`, nil
	default:
		return `{"characters":[{"name":"Keeper","description":"old man in an oilskin coat"}]}`, nil
	}
}

// gatedInferencer holds the first call until gate is closed.
type gatedInferencer struct {
	next    inference.Inferencer
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedInferencer) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.next.Infer(ctx, params, system, user)
}

func newTestServer(t *testing.T, inf inference.Inferencer, dir string) *Server {
	t.Helper()
	opts := story.DefaultOptions()
	opts.Mode = story.ModeWhole
	return NewServer(t.Context(), inf, opts, dir)
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	return out
}

func find(events []sseEvent, name string) (sseEvent, bool) {
	for _, ev := range events {
		if ev.name == name {
			return ev, true
		}
	}
	return sseEvent{}, false
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func storyboardRequest(text string) *http.Request {
	body, _ := json.Marshal(map[string]string{"text": text})
	req := httptest.NewRequest(http.MethodPost, "/api/storyboard", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func postStoryboard(t *testing.T, srv *Server, text string) (*schema.Storyboard, []sseEvent) {
	t.Helper()
	return decodeRun(t, do(srv, storyboardRequest(text)))
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) (*schema.Storyboard, []sseEvent) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	events := parseSSE(t, rec.Body.String())
	done, ok := find(events, "done")
	if !ok {
		t.Fatalf("no done event in %s", rec.Body)
	}
	var board schema.Storyboard
	if err := json.Unmarshal([]byte(done.data), &board); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	return &board, events
}

func TestPostStoryboard_StreamsAndPersists(t *testing.T) {
	t.Parallel()

	inf := &fakeInferencer{}
	dir := t.TempDir()
	srv := newTestServer(t, inf, dir)

	board, events := postStoryboard(t, srv, lighthouse)
	if len(board.Segments) != 2 || board.Segments[1].ID != 2 || board.Segments[0].Prompt == "" {
		t.Fatalf("board=%+v", board)
	}
	for _, name := range []string{"profile", "scenes", "prompt"} {
		if _, ok := find(events, name); !ok {
			t.Fatalf("missing %s event", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, board.ID, export.RecordFile)); err != nil {
		t.Fatalf("run record not written: %v", err)
	}

	calls := inf.calls.Load()
	again, _ := postStoryboard(t, srv, lighthouse)
	if again.ID != board.ID || inf.calls.Load() != calls {
		t.Fatalf("identical submission was not served from cache")
	}
}

func TestGetStoryboardAndArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	board, _ := postStoryboard(t, newTestServer(t, &fakeInferencer{}, dir), lighthouse)

	// A fresh server only knows the run through its record on disk.
	srv := newTestServer(t, &fakeInferencer{}, dir)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/storyboard/"+board.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var got schema.Storyboard
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.ID != board.ID {
		t.Fatalf("got=%+v err=%v", got, err)
	}

	rec = do(srv, httptest.NewRequest(http.MethodGet, "/api/storyboard/"+board.ID+"/"+export.SegmentsFile, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("artifact status=%d", rec.Code)
	}
	if want := "[1] The keeper lit the lamp.\n\n[2] A ship turned home.\n"; rec.Body.String() != want {
		t.Fatalf("segments=%q", rec.Body.String())
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, export.SegmentsFile) {
		t.Fatalf("Content-Disposition=%q", cd)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/storyboard/" + board.ID + "/notes.txt", http.StatusNotFound},
		{"/api/storyboard/" + ksuid.New().String(), http.StatusNotFound},
		{"/api/storyboard/not-an-id", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(srv, httptest.NewRequest(http.MethodGet, tt.path, nil)); rec.Code != tt.code {
			t.Fatalf("GET %s status=%d, want %d", tt.path, rec.Code, tt.code)
		}
	}
}

func TestPostStoryboard_MultipartUpload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "story.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(lighthouse))
	mw.WriteField("style", "woodcut")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/storyboard", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := do(newTestServer(t, &fakeInferencer{}, ""), req)

	if _, ok := find(parseSSE(t, rec.Body.String()), "done"); !ok {
		t.Fatalf("no done event: %s", rec.Body)
	}
}

func TestPostStoryboard_Errors(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/storyboard", strings.NewReader(`{"text":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if rec := do(newTestServer(t, &fakeInferencer{}, ""), req); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/storyboard", strings.NewReader(`{"text":"Once."}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(newTestServer(t, &fakeInferencer{garbage: true}, ""), req)
	ev, ok := find(parseSSE(t, rec.Body.String()), "error")
	if !ok {
		t.Fatalf("no error event: %s", rec.Body)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if payload["raw"] != "I cannot help with that." {
		t.Fatalf("error payload=%v", payload)
	}
}

func TestPostChunks(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeInferencer{}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/chunks", strings.NewReader(`{"text":"First one.\n\nSecond one.","chunk_size":12,"overlap":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var resp chunksResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Chunks[1].Overlap != "ne." || resp.Chunks[1].Body != "Second one." {
		t.Fatalf("resp=%+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chunks", strings.NewReader(`{"text":"x","chunk_size":5,"overlap":5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if rec := do(srv, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("overlap >= size status=%d", rec.Code)
	}
}

func TestPostStoryboard_JoinedRequestStreamsProgress(t *testing.T) {
	t.Parallel()

	inf := &gatedInferencer{next: &fakeInferencer{}, entered: make(chan struct{}), gate: make(chan struct{})}
	srv := newTestServer(t, inf, "")
	key := runKey(storyboardReq{Text: lighthouse})

	var (
		wg     sync.WaitGroup
		first  *httptest.ResponseRecorder
		joined *httptest.ResponseRecorder
	)
	wg.Go(func() { first = do(srv, storyboardRequest(lighthouse)) })
	<-inf.entered

	wg.Go(func() { joined = do(srv, storyboardRequest(lighthouse)) })
	deadline := time.Now().Add(5 * time.Second)
	for srv.watchers.count(key) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("second request never joined the run")
		}
		time.Sleep(time.Millisecond)
	}
	close(inf.gate)
	wg.Wait()

	a, aEvents := decodeRun(t, first)
	b, bEvents := decodeRun(t, joined)
	if a.ID != b.ID {
		t.Fatalf("joined request got run %s, want %s", b.ID, a.ID)
	}
	for _, events := range [][]sseEvent{aEvents, bEvents} {
		if _, ok := find(events, "scenes"); !ok {
			t.Fatalf("missing scenes progress in %v", events)
		}
	}
	if n := srv.watchers.count(key); n != 0 {
		t.Fatalf("%d streams still watching after both requests returned", n)
	}
}

func TestPostStoryboard_FailedForceDropsCachedRun(t *testing.T) {
	t.Parallel()

	inf := &fakeInferencer{}
	srv := newTestServer(t, inf, "")
	board, _ := postStoryboard(t, srv, lighthouse)

	inf.garbage = true
	req := storyboardRequest(lighthouse)
	req.Header.Set("Cache-Control", "no-cache")
	if _, ok := find(parseSSE(t, do(srv, req).Body.String()), "error"); !ok {
		t.Fatalf("forced rerun with unusable replies did not fail")
	}

	inf.garbage = false
	again, _ := postStoryboard(t, srv, lighthouse)
	if again.ID == board.ID {
		t.Fatalf("cached run %s still served after a failed rerun", board.ID)
	}
}
