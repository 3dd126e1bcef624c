package schema

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Character struct {
	Name        string `json:"name" jsonschema_description:"Canonical character name"`
	Description string `json:"description" jsonschema_description:"Visual description: age, build, face, hair, clothing, distinguishing marks"`
}

// CharacterProfile lists recurring characters. It decodes from
// {"characters": [{"name", "description"}]} or from a plain {"Name": "description"} object.
type CharacterProfile struct {
	Characters []Character `json:"characters" jsonschema_description:"Recurring characters with consistent visual descriptions"`
}

func (p *CharacterProfile) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var chars []Character
		if err := json.Unmarshal(data, &chars); err != nil {
			return err
		}
		p.Characters = chars
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if list, ok := raw["characters"]; ok && len(raw) == 1 {
		var chars []Character
		if err := json.Unmarshal(list, &chars); err == nil {
			p.Characters = chars
			return nil
		}
	}

	// Plain mapping: keep the key order of the source text.
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	p.Characters = nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var desc any
		if err := dec.Decode(&desc); err != nil {
			return err
		}
		p.Characters = append(p.Characters, Character{Name: name, Description: describe(desc)})
	}
	return nil
}

// describe flattens a nested description value into text.
func describe(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Normalize trims entries, drops nameless ones and merges duplicates by case-insensitive name.
// It returns the names of dropped entries.
func (p CharacterProfile) Normalize() (CharacterProfile, []string) {
	var dropped []string
	idx := make(map[string]int, len(p.Characters))
	out := make([]Character, 0, len(p.Characters))
	for _, ch := range p.Characters {
		ch.Name = strings.TrimSpace(ch.Name)
		ch.Description = strings.TrimSpace(ch.Description)
		if ch.Name == "" {
			dropped = append(dropped, ch.Description)
			continue
		}
		key := strings.ToLower(ch.Name)
		if i, ok := idx[key]; ok {
			if ch.Description != "" && !strings.Contains(out[i].Description, ch.Description) {
				out[i].Description = strings.TrimSpace(out[i].Description + " " + ch.Description)
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, ch)
	}
	return CharacterProfile{Characters: out}, dropped
}

// Names returns character names in profile order.
func (p CharacterProfile) Names() []string {
	names := make([]string, 0, len(p.Characters))
	for _, ch := range p.Characters {
		names = append(names, ch.Name)
	}
	return names
}

// String renders the profile as "Name: description" lines for prompt inclusion.
func (p CharacterProfile) String() string {
	var sb strings.Builder
	for _, ch := range p.Characters {
		sb.WriteString(ch.Name)
		if ch.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(ch.Description)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}
