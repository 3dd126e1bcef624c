package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Scene is one narrative unit of a story, later paired with an image prompt.
type Scene struct {
	ID             int    `json:"id"`
	Text           string `json:"text"`
	Summary        string `json:"summary,omitempty"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// SceneDraft is a scene as returned by the split step, before renumbering.
type SceneDraft struct {
	Scene   int    `json:"scene" jsonschema_description:"Sequential scene number starting at 1"`
	Text    string `json:"text" jsonschema_description:"The exact story text belonging to this scene"`
	Summary string `json:"summary" jsonschema_description:"One or two sentence summary of what happens in the scene"`
}

// SceneList is the split reply. It decodes from a bare array or from {"scenes": [...]}.
type SceneList struct {
	Scenes []SceneDraft `json:"scenes" jsonschema_description:"Scenes in story order"`
}

func (l *SceneList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var scenes []SceneDraft
		if err := json.Unmarshal(data, &scenes); err != nil {
			return err
		}
		l.Scenes = scenes
		return nil
	}

	var obj struct {
		Scenes   []SceneDraft `json:"scenes"`
		Segments []SceneDraft `json:"segments"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Scenes = obj.Scenes
	if l.Scenes == nil {
		l.Scenes = obj.Segments
	}
	return nil
}

// Validate rejects a reply without any scene text.
func (l *SceneList) Validate() error {
	for _, s := range l.Scenes {
		if strings.TrimSpace(s.Text) != "" || strings.TrimSpace(s.Summary) != "" {
			return nil
		}
	}
	return errors.New("no scenes in reply")
}

// ScenePrompt is the per-scene generation reply.
type ScenePrompt struct {
	Prompt         string `json:"prompt" jsonschema_description:"Single-paragraph image generation prompt for the scene"`
	NegativePrompt string `json:"negative_prompt" jsonschema_description:"Comma separated things the image must not contain; empty if none"`
}

func (p *ScenePrompt) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return errors.New("empty prompt")
	}
	return nil
}

// Renumber converts drafts into scenes numbered 1..n in order, ignoring the draft numbers.
func Renumber(drafts []SceneDraft) []Scene {
	out := make([]Scene, 0, len(drafts))
	for _, d := range drafts {
		text, summary := strings.TrimSpace(d.Text), strings.TrimSpace(d.Summary)
		if text == "" && summary == "" {
			continue
		}
		out = append(out, Scene{ID: len(out) + 1, Text: text, Summary: summary})
	}
	return out
}
