package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"storyboard/pkg/schema"
	"storyboard/pkg/utils"
)

const (
	SegmentsFile = "story_segments.txt"
	PromptsFile  = "image_prompts.txt"
	BundleFile   = "storyboard.json"
	// RecordFile holds the whole storyboard, profile and failures included, so runs can be reloaded.
	RecordFile = "run.json"
)

var (
	ErrUnknownArtifact = errors.New("unknown artifact")
	ErrNoRecord        = errors.New("no storyboard record")
)

// Artifacts lists the downloadable file names.
func Artifacts() []string {
	return []string{SegmentsFile, PromptsFile, BundleFile}
}

// Segments renders "[id] text" blocks separated by blank lines.
func Segments(scenes []schema.Scene) string {
	var sb strings.Builder
	for i, s := range scenes {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%d] %s\n", s.ID, s.Text)
	}
	return sb.String()
}

// Prompts renders "[id] prompt" blocks. Scenes without a prompt are left out.
func Prompts(scenes []schema.Scene) string {
	var sb strings.Builder
	for _, s := range scenes {
		if s.Prompt == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%d] %s\n", s.ID, s.Prompt)
		if s.NegativePrompt != "" {
			fmt.Fprintf(&sb, "Negative prompt: %s\n", s.NegativePrompt)
		}
	}
	return sb.String()
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render returns the named artifact and its content type.
func Render(board *schema.Storyboard, name string) ([]byte, string, error) {
	switch name {
	case SegmentsFile:
		return []byte(Segments(board.Segments)), "text/plain; charset=utf-8", nil
	case PromptsFile:
		return []byte(Prompts(board.Segments)), "text/plain; charset=utf-8", nil
	case BundleFile:
		b, err := marshal(board.Bundle())
		return b, "application/json", err
	case RecordFile:
		b, err := marshal(board)
		return b, "application/json", err
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownArtifact, name)
	}
}

// WriteAll writes every artifact plus the run record into dir and returns the written paths.
func WriteAll(dir string, board *schema.Storyboard) ([]string, error) {
	var paths []string
	for _, name := range append(Artifacts(), RecordFile) {
		data, _, err := Render(board, name)
		if err != nil {
			return paths, fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := utils.WriteText(path, string(data)); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	log.Info("storyboard written", "dir", dir, "files", len(paths))
	return paths, nil
}

// Load reads a run record written by WriteAll.
func Load(dir string) (*schema.Storyboard, error) {
	path := filepath.Join(dir, RecordFile)
	if !utils.Exists(path) {
		return nil, fmt.Errorf("%w in %s", ErrNoRecord, dir)
	}
	board, err := utils.Load[schema.Storyboard](path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &board, nil
}
