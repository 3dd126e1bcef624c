package schema

import (
	"encoding/json"
	"errors"
	"time"
)

// Storyboard is the result of one run over a story.
type Storyboard struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Profile   CharacterProfile `json:"profile"`
	Segments  []Scene          `json:"segments"`
	Failures  []Failure        `json:"failures,omitempty"`
	// Coverage measures how much of the story text the split scenes kept.
	Coverage Coverage `json:"coverage"`
}

// Coverage counts source words found, in order, in the split scenes.
type Coverage struct {
	Words   int      `json:"words"`
	Covered int      `json:"covered"`
	Missing []string `json:"missing,omitempty"`
}

// Ratio is Covered/Words, or 1 when there is nothing to cover.
func (c Coverage) Ratio() float64 {
	if c.Words == 0 {
		return 1
	}
	return float64(c.Covered) / float64(c.Words)
}

// Add sums two coverages, keeping the missing runs of both.
func (c Coverage) Add(o Coverage) Coverage {
	return Coverage{
		Words:   c.Words + o.Words,
		Covered: c.Covered + o.Covered,
		Missing: append(c.Missing[:len(c.Missing):len(c.Missing)], o.Missing...),
	}
}

// Bundle is the downloadable JSON artifact.
type Bundle struct {
	Segments []Scene `json:"segments"`
}

func (s *Storyboard) Bundle() Bundle {
	return Bundle{Segments: s.Segments}
}

// Failure records a unit of work that was skipped.
type Failure struct {
	Stage string `json:"stage"`
	Unit  int    `json:"unit"`
	Error error  `json:"-"`
	Raw   string `json:"raw,omitzero"`
}

type failureAlias struct {
	Stage string `json:"stage"`
	Unit  int    `json:"unit"`
	Error string `json:"error,omitzero"`
	Raw   string `json:"raw,omitzero"`
}

func (f Failure) MarshalJSON() ([]byte, error) {
	a := failureAlias{Stage: f.Stage, Unit: f.Unit, Raw: f.Raw}
	if f.Error != nil {
		a.Error = f.Error.Error()
	}
	return json.Marshal(a)
}

func (f *Failure) UnmarshalJSON(data []byte) error {
	var a failureAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	f.Stage = a.Stage
	f.Unit = a.Unit
	f.Raw = a.Raw
	f.Error = nil
	if a.Error != "" {
		f.Error = errors.New(a.Error)
	}
	return nil
}
