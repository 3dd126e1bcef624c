package chunk

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChars = 4000
	DefaultOverlap  = 200

	// Joiner separates paragraphs inside a chunk body.
	Joiner = "\n\n"
)

// Chunk is a paragraph-aligned slice of a story.
type Chunk struct {
	Index int `json:"index"`
	// Overlap holds the trailing runes of the previous chunk's body. Empty for the first chunk.
	Overlap string `json:"overlap,omitempty"`
	// Body holds whole paragraphs joined by a blank line.
	Body string `json:"body"`
	// Paragraphs is the number of paragraphs in Body.
	Paragraphs int `json:"paragraphs"`
}

// OverlapFor is the default overlap for bodies of maxChars runes: a tenth of
// the body, capped at DefaultOverlap.
func OverlapFor(maxChars int) int {
	return max(0, min(DefaultOverlap, maxChars/10))
}

// Text returns the body prefixed with the overlap carried over from the previous chunk.
func (c Chunk) Text() string {
	if c.Overlap == "" {
		return c.Body
	}
	return c.Overlap + Joiner + c.Body
}

// Len is the body length in runes. The overlap is context and does not count.
func (c Chunk) Len() int { return runeLen(c.Body) }

type Chunker struct {
	MaxChars int
	Overlap  int
}

// New returns a Chunker with defaults applied to out-of-range values.
func New(maxChars, overlap int) Chunker {
	return Chunker{MaxChars: maxChars, Overlap: overlap}.normalized()
}

func (c Chunker) normalized() Chunker {
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	return c
}

var blankLineRX = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Paragraphs splits text on blank lines, trimming each paragraph and dropping empty ones.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, p := range blankLineRX.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunks lazily packs the paragraphs of text into chunks.
//
// A paragraph is never split. One that is longer than MaxChars on its own becomes
// a single oversized chunk.
func (c Chunker) Chunks(text string) iter.Seq[Chunk] {
	c = c.normalized()
	paragraphs := Paragraphs(text)
	jlen := runeLen(Joiner)

	return func(yield func(Chunk) bool) {
		var (
			cur     []string
			curLen  int
			index   int
			overlap string
		)

		flush := func() bool {
			if len(cur) == 0 {
				return true
			}
			body := strings.Join(cur, Joiner)
			ch := Chunk{Index: index, Overlap: overlap, Body: body, Paragraphs: len(cur)}
			index++
			overlap = tail(body, c.Overlap)
			cur, curLen = nil, 0
			return yield(ch)
		}

		for _, p := range paragraphs {
			plen := runeLen(p)

			if plen > c.MaxChars {
				if !flush() {
					return
				}
				cur, curLen = []string{p}, plen
				if !flush() {
					return
				}
				continue
			}

			add := plen
			if curLen > 0 {
				add += jlen
			}
			if curLen+add > c.MaxChars {
				if !flush() {
					return
				}
				add = plen
			}
			cur = append(cur, p)
			curLen += add
		}
		flush()
	}
}

// Split materializes Chunks.
func (c Chunker) Split(text string) []Chunk {
	var out []Chunk
	for ch := range c.Chunks(text) {
		out = append(out, ch)
	}
	return out
}

// Split chunks text with the given budget and overlap.
func Split(text string, maxChars, overlap int) []Chunk {
	return New(maxChars, overlap).Split(text)
}

// Bodies returns the chunk bodies in order, without overlap.
func Bodies(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Body
	}
	return out
}

// tail returns the last n runes of s, or s when it is shorter.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runeLen(s) <= n {
		return s
	}
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
