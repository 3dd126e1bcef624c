package diff

import (
	"errors"
	"strings"
	"unicode"

	"github.com/aryann/difflib"

	"storyboard/pkg/schema"
)

type Op int

const (
	Equal Op = iota
	Insert
	Delete
)

type WordDelta struct {
	Op   Op
	Text string
}

// maxCells bounds the LCS table difflib allocates.
const maxCells = 4_000_000

// maxMissing caps the number of missing runs kept in a Coverage.
const maxMissing = 20

var ErrTooLarge = errors.New("texts too large to compare")

// Words splits s into lowercase word tokens, dropping punctuation.
func Words(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '’'
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// Strings returns the word-level edit script turning a into b.
func Strings(a, b string) ([]WordDelta, error) {
	at, bt := Words(a), Words(b)
	if len(at)*len(bt) > maxCells {
		return nil, ErrTooLarge
	}
	recs := difflib.Diff(at, bt)
	deltas := make([]WordDelta, 0, len(recs))
	for _, r := range recs {
		switch r.Delta {
		case difflib.Common:
			deltas = append(deltas, WordDelta{Op: Equal, Text: r.Payload})
		case difflib.LeftOnly:
			deltas = append(deltas, WordDelta{Op: Delete, Text: r.Payload})
		case difflib.RightOnly:
			deltas = append(deltas, WordDelta{Op: Insert, Text: r.Payload})
		}
	}
	return coalesce(deltas), nil
}

// coalesce merges consecutive deltas with the same op.
func coalesce(in []WordDelta) []WordDelta {
	out := make([]WordDelta, 0, len(in))
	for _, d := range in {
		if n := len(out); n > 0 && out[n-1].Op == d.Op {
			out[n-1].Text += " " + d.Text
			continue
		}
		out = append(out, d)
	}
	return out
}

// Cover reports how many words of source appear, in order, in parts.
// Words the model added are ignored.
func Cover(source string, parts []string) (schema.Coverage, error) {
	deltas, err := Strings(source, strings.Join(parts, "\n"))
	if err != nil {
		return schema.Coverage{}, err
	}

	var cov schema.Coverage
	for _, d := range deltas {
		n := strings.Count(d.Text, " ") + 1
		switch d.Op {
		case Equal:
			cov.Words += n
			cov.Covered += n
		case Delete:
			cov.Words += n
			if len(cov.Missing) < maxMissing {
				cov.Missing = append(cov.Missing, d.Text)
			}
		}
	}
	return cov, nil
}
