// Package senter provides a rule-based sentence boundary stage.
package senter

import (
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
)

// DefaultName is the stage name used when none is given.
const DefaultName = "sentencizer"

// DefaultPunct are the tokens that end a sentence.
var DefaultPunct = []string{".", "!", "?"}

// Sentencizer opens a new sentence after each run of terminal punctuation.
type Sentencizer struct {
	name  string
	punct map[string]bool
}

// New creates a sentencizer. With no punct, DefaultPunct is used.
func New(name string, punct ...string) *Sentencizer {
	if name == "" {
		name = DefaultName
	}
	if len(punct) == 0 {
		punct = DefaultPunct
	}
	s := &Sentencizer{name: name, punct: make(map[string]bool, len(punct))}
	for _, p := range punct {
		s.punct[p] = true
	}
	return s
}

func (s *Sentencizer) Name() string        { return s.name }
func (s *Sentencizer) Kind() pipeline.Kind { return pipeline.KindSentencizer }

// Annotate marks sentence starts on doc.
func (s *Sentencizer) Annotate(doc *ingest.Doc) error {
	starts := make([]bool, len(doc.Tokens))
	seenTerminal := false
	for i, tok := range doc.Tokens {
		if s.punct[tok.Text] {
			seenTerminal = true
			continue
		}
		if seenTerminal {
			starts[i] = true
			seenTerminal = false
		}
	}
	return doc.SetSentStarts(starts)
}
