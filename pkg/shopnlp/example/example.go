// Package example binds raw corpus annotations to a shared tokenization.
package example

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

// Outside is the BIO tag of a token outside every entity.
const Outside = "O"

// Example is a training example whose entity spans align to token
// boundaries. It is immutable; accessors return copies.
type Example struct {
	text   string
	tokens []ingest.Token
	ents   []corpus.Entity
	spans  []ingest.Span
	cats   corpus.Cats
	tags   []string
}

// Text returns the example text.
func (e *Example) Text() string { return e.text }

// Tokens returns the example tokens.
func (e *Example) Tokens() []ingest.Token { return append([]ingest.Token(nil), e.tokens...) }

// NumTokens returns the number of tokens.
func (e *Example) NumTokens() int { return len(e.tokens) }

// Entities returns the character-offset spans, as given.
func (e *Example) Entities() []corpus.Entity { return append([]corpus.Entity(nil), e.ents...) }

// Spans returns the entity spans as token ranges.
func (e *Example) Spans() []ingest.Span { return append([]ingest.Span(nil), e.spans...) }

// Cats returns the category targets.
func (e *Example) Cats() corpus.Cats { return append(corpus.Cats(nil), e.cats...) }

// Tags returns one BIO tag per token.
func (e *Example) Tags() []string { return append([]string(nil), e.tags...) }

// Builder turns raw corpus pairs into Examples with one tokenizer.
type Builder struct {
	tok    *ingest.Tokenizer
	logger *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger dropped examples are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder over the shared tokenizer.
func NewBuilder(tok *ingest.Tokenizer, opts ...Option) *Builder {
	b := &Builder{tok: tok, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build converts every raw pair. Pairs whose spans do not align are
// dropped, logged, and returned as errors; the rest are built.
func (b *Builder) Build(raw []corpus.Example) ([]*Example, []error) {
	out := make([]*Example, 0, len(raw))
	var errs []error
	for i, r := range raw {
		ex, err := b.BuildOne(r)
		if err != nil {
			b.logger.Warn("dropping training example",
				zap.Int("index", i),
				zap.String("text", r.Text),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("example %d: %w", i, err))
			continue
		}
		out = append(out, ex)
	}
	return out, errs
}

// BuildOne tokenizes the text and binds its annotations. Offsets are never
// adjusted: a span that does not start and end on token boundaries, or
// that overlaps another span, fails with ErrMisaligned.
func (b *Builder) BuildOne(raw corpus.Example) (*Example, error) {
	doc := b.tok.MakeDoc(raw.Text)

	starts := make(map[int]int, len(doc.Tokens))
	ends := make(map[int]int, len(doc.Tokens))
	for i, tok := range doc.Tokens {
		starts[tok.Start] = i
		ends[tok.End] = i
	}

	ents := append([]corpus.Entity(nil), raw.Annotations.Entities...)
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Start < ents[j].Start })

	tags := make([]string, len(doc.Tokens))
	for i := range tags {
		tags[i] = Outside
	}

	spans := make([]ingest.Span, 0, len(ents))
	for _, ent := range ents {
		if ent.Label == "" {
			return nil, fmt.Errorf("span [%d, %d): empty label: %w", ent.Start, ent.End, internalerr.ErrMalformedExample)
		}
		first, okStart := starts[ent.Start]
		last, okEnd := ends[ent.End]
		if ent.Start >= ent.End || !okStart || !okEnd || last < first {
			return nil, fmt.Errorf("span [%d, %d) %s in %q: %w", ent.Start, ent.End, ent.Label, raw.Text, internalerr.ErrMisaligned)
		}
		for i := first; i <= last; i++ {
			if tags[i] != Outside {
				return nil, fmt.Errorf("span [%d, %d) %s overlaps another span: %w", ent.Start, ent.End, ent.Label, internalerr.ErrMisaligned)
			}
		}
		tags[first] = "B-" + ent.Label
		for i := first + 1; i <= last; i++ {
			tags[i] = "I-" + ent.Label
		}
		spans = append(spans, ingest.Span{Start: first, End: last + 1, Label: ent.Label})
	}

	return &Example{
		text:   raw.Text,
		tokens: doc.Tokens,
		ents:   append([]corpus.Entity(nil), raw.Annotations.Entities...),
		spans:  spans,
		cats:   append(corpus.Cats(nil), raw.Annotations.Cats...),
		tags:   tags,
	}, nil
}
