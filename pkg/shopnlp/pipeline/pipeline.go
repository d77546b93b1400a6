// Package pipeline hosts the annotation stages that run over a shared
// tokenization and turns their output into a Document.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

// Pipeline runs the tokenizer followed by its stages in order.
//
// A pipeline published through a Handle is read-only and safe for
// concurrent use. Add and Isolate are setup and training operations.
type Pipeline struct {
	tok      *ingest.Tokenizer
	stages   []Stage
	disabled map[string]bool
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger degraded stages are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline with only a tokenizer.
func New(tok *ingest.Tokenizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		tok:      tok,
		disabled: make(map[string]bool),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tokenizer returns the shared tokenizer.
func (p *Pipeline) Tokenizer() *ingest.Tokenizer { return p.tok }

// Add appends a stage. Stage names are unique.
func (p *Pipeline) Add(s Stage) error {
	if _, ok := p.Get(s.Name()); ok {
		return fmt.Errorf("stage %q: %w", s.Name(), internalerr.ErrDuplicate)
	}
	p.stages = append(p.stages, s)
	return nil
}

// Get returns the stage with the given name.
func (p *Pipeline) Get(name string) (Stage, bool) {
	for _, s := range p.stages {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Names returns the stage names in run order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Stages returns the stages in run order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Isolate disables every stage but name until the returned restore func
// is called.
func (p *Pipeline) Isolate(name string) (restore func(), err error) {
	if _, ok := p.Get(name); !ok {
		return nil, fmt.Errorf("isolate %q: %w", name, internalerr.ErrNotFound)
	}
	prev := p.disabled
	disabled := make(map[string]bool, len(p.stages))
	for _, s := range p.stages {
		if s.Name() != name {
			disabled[s.Name()] = true
		}
	}
	p.disabled = disabled
	return func() { p.disabled = prev }, nil
}

func (p *Pipeline) active() []Stage {
	out := make([]Stage, 0, len(p.stages))
	for _, s := range p.stages {
		if !p.disabled[s.Name()] {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) hasKind(kinds ...Kind) bool {
	for _, s := range p.active() {
		for _, k := range kinds {
			if s.Kind() == k {
				return true
			}
		}
	}
	return false
}

// HasEntityRecognizer reports whether an entity recognizer is active.
func (p *Pipeline) HasEntityRecognizer() bool { return p.hasKind(KindEntityRecognizer) }

// HasTextClassifier reports whether a text classifier is active.
func (p *Pipeline) HasTextClassifier() bool { return p.hasKind(KindTextClassifier) }

// HasSentenceBoundaries reports whether a sentencizer or parser is active.
func (p *Pipeline) HasSentenceBoundaries() bool {
	return p.hasKind(KindSentencizer, KindParser)
}

// HasParser reports whether a dependency parser is active.
func (p *Pipeline) HasParser() bool { return p.hasKind(KindParser) }

// MakeDoc tokenizes text without running any stage.
func (p *Pipeline) MakeDoc(text string) *ingest.Doc {
	return p.tok.MakeDoc(text)
}

// Run tokenizes text and applies every active stage. A stage that fails
// or panics is skipped; the rest still run.
func (p *Pipeline) Run(text string) *ingest.Doc {
	doc := p.tok.MakeDoc(text)
	for _, s := range p.active() {
		if err := runStage(s, doc); err != nil {
			p.logger.Debug("stage degraded",
				zap.String("stage", s.Name()),
				zap.Error(err),
			)
		}
	}
	return doc
}

func runStage(s Stage, doc *ingest.Doc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Annotate(doc)
}
