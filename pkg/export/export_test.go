package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyboard/pkg/schema"
)

func sampleBoard() *schema.Storyboard {
	return &schema.Storyboard{
		ID:        "2abc",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Profile:   schema.CharacterProfile{Characters: []schema.Character{{Name: "Mara", Description: "red coat"}}},
		Segments: []schema.Scene{
			{ID: 1, Text: "Mara leaves home.", Summary: "departure", Prompt: "a woman in a red coat at a door"},
			{ID: 2, Text: "Rain <falls>.", Prompt: ""},
			{ID: 3, Text: "She arrives.", Prompt: "a train station", NegativePrompt: "text"},
		},
		Failures: []schema.Failure{{Stage: "prompt", Unit: 2, Error: errors.New("bad json"), Raw: "??"}},
	}
}

func TestSegmentsAndPrompts(t *testing.T) {
	t.Parallel()

	board := sampleBoard()
	wantSegments := "[1] Mara leaves home.\n\n[2] Rain <falls>.\n\n[3] She arrives.\n"
	if got := Segments(board.Segments); got != wantSegments {
		t.Fatalf("Segments=%q\nwant %q", got, wantSegments)
	}
	wantPrompts := "[1] a woman in a red coat at a door\n\n[3] a train station\nNegative prompt: text\n"
	if got := Prompts(board.Segments); got != wantPrompts {
		t.Fatalf("Prompts=%q\nwant %q", got, wantPrompts)
	}
	if Segments(nil) != "" {
		t.Fatalf("expected empty output for no scenes")
	}
}

func TestRender_Bundle(t *testing.T) {
	t.Parallel()

	data, ctype, err := Render(sampleBoard(), BundleFile)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ctype != "application/json" {
		t.Fatalf("content type=%q", ctype)
	}
	var bundle struct {
		Segments []map[string]any `json:"segments"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatalf("Unmarshal: %v\n%s", err, data)
	}
	if len(bundle.Segments) != 3 || bundle.Segments[1]["text"] != "Rain <falls>." {
		t.Fatalf("bundle=%+v", bundle)
	}
	if _, ok := bundle.Segments[1]["summary"]; ok {
		t.Fatalf("empty summary should be omitted")
	}

	if _, _, err := Render(sampleBoard(), "../etc/passwd"); !errors.Is(err, ErrUnknownArtifact) {
		t.Fatalf("err=%v, want ErrUnknownArtifact", err)
	}
}

func TestWriteAllAndLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "runs", "2abc")
	paths, err := WriteAll(dir, sampleBoard())
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("paths=%v", paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	board, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if board.ID != "2abc" || len(board.Segments) != 3 || len(board.Failures) != 1 {
		t.Fatalf("board=%+v", board)
	}
	if board.Failures[0].Error == nil || board.Failures[0].Error.Error() != "bad json" {
		t.Fatalf("failure=%+v", board.Failures[0])
	}

	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("err=%v, want ErrNoRecord", err)
	}
}
