package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSentences is returned by Sents when no stage has set sentence boundaries.
	ErrNoSentences = errors.New("sentence boundaries not set")
	// ErrNoParse is returned by NounChunks and Deps when no stage has parsed the doc.
	ErrNoParse = errors.New("dependency parse not set")
)

// Token is one token of a Doc. Start and End are character (rune) offsets
// into the original text, End exclusive.
type Token struct {
	Text    string
	Lower   string
	Lemma   string
	Start   int
	End     int
	IsStop  bool
	IsPunct bool
	LikeNum bool

	// Set by syntactic stages; empty otherwise.
	POS  string
	Tag  string
	Dep  string
	Head int // index of the head token, -1 when unparsed
}

// Span is a run of tokens [Start, End) with an optional label.
type Span struct {
	Start int
	End   int
	Label string
}

// Score is one classifier label with its probability.
type Score struct {
	Label string  `json:"label"`
	Value float64 `json:"score"`
}

// Doc is the working document a pipeline fills in stage by stage.
type Doc struct {
	Text   string
	Tokens []Token
	Ents   []Span
	Cats   []Score

	runes      []rune
	sentStarts []bool
	parsed     bool
}

// Chars returns the character offsets covered by a span.
func (d *Doc) Chars(s Span) (start, end int) {
	if s.Start >= s.End || s.End > len(d.Tokens) {
		return 0, 0
	}
	return d.Tokens[s.Start].Start, d.Tokens[s.End-1].End
}

// SpanText returns the original text covered by a span, inner whitespace included.
func (d *Doc) SpanText(s Span) string {
	start, end := d.Chars(s)
	if d.runes == nil {
		d.runes = []rune(d.Text)
	}
	return string(d.runes[start:end])
}

// SetSentStarts marks which tokens open a sentence. The first token always does.
func (d *Doc) SetSentStarts(starts []bool) error {
	if len(starts) != len(d.Tokens) {
		return fmt.Errorf("sentence starts: got %d flags for %d tokens", len(starts), len(d.Tokens))
	}
	flags := append([]bool(nil), starts...)
	if len(flags) > 0 {
		flags[0] = true
	}
	d.sentStarts = flags
	return nil
}

// Sents returns sentence spans in order.
func (d *Doc) Sents() ([]Span, error) {
	if d.sentStarts == nil {
		return nil, ErrNoSentences
	}
	var out []Span
	start := 0
	for i := 1; i <= len(d.Tokens); i++ {
		if i == len(d.Tokens) || d.sentStarts[i] {
			if i > start {
				out = append(out, Span{Start: start, End: i})
			}
			start = i
		}
	}
	return out, nil
}

// SetParse records a dependency parse. heads[i] is the head index of token i
// (i itself for a root); deps[i] its relation label.
func (d *Doc) SetParse(heads []int, deps []string) error {
	if len(heads) != len(d.Tokens) || len(deps) != len(d.Tokens) {
		return fmt.Errorf("parse: got %d heads and %d deps for %d tokens", len(heads), len(deps), len(d.Tokens))
	}
	for i, h := range heads {
		if h < 0 || h >= len(d.Tokens) {
			return fmt.Errorf("parse: token %d has head %d out of range", i, h)
		}
	}
	for i := range d.Tokens {
		d.Tokens[i].Head = heads[i]
		d.Tokens[i].Dep = deps[i]
	}
	d.parsed = true
	return nil
}

// IsParsed reports whether a dependency parse is set.
func (d *Doc) IsParsed() bool { return d.parsed }

// npHeads are the relations whose nominal dependents head a noun chunk.
var npHeads = map[string]bool{
	"nsubj": true, "nsubjpass": true, "dobj": true, "obj": true, "pobj": true,
	"attr": true, "appos": true, "conj": true, "ROOT": true, "root": true,
}

// npModifiers are the parts of speech that extend a chunk leftwards.
var npModifiers = map[string]bool{
	"DET": true, "ADJ": true, "NUM": true, "NOUN": true, "PROPN": true,
}

// NounChunks returns base noun phrases: a nominal head in an argument
// relation plus the contiguous modifiers to its left that attach to it.
func (d *Doc) NounChunks() ([]Span, error) {
	if !d.parsed {
		return nil, ErrNoParse
	}
	var out []Span
	lastEnd := 0
	for i, tok := range d.Tokens {
		if tok.POS != "NOUN" && tok.POS != "PROPN" && tok.POS != "PRON" {
			continue
		}
		if !npHeads[tok.Dep] {
			continue
		}
		start := i
		for start > lastEnd {
			prev := d.Tokens[start-1]
			if prev.Head != i || !npModifiers[prev.POS] {
				break
			}
			start--
		}
		out = append(out, Span{Start: start, End: i + 1})
		lastEnd = i + 1
	}
	return out, nil
}
