// Package shopnlp resolves shopping-assistant utterances into an intent
// and a document annotation using a loaded pipeline bundle.
package shopnlp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/bundle"
	"github.com/cognicore/shopnlp/pkg/shopnlp/intent"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
)

// Engine is the inference facade
type Engine struct {
	handle   *pipeline.Handle
	resolver *intent.Resolver
	logger   *zap.Logger
}

// Options configures an Engine
type Options struct {
	Handle   *pipeline.Handle
	Resolver *intent.Resolver
	Logger   *zap.Logger
}

// New creates an Engine. A nil Handle gets one backed by BundleLoader that
// stays unloaded until Reload is pointed at a location; a nil Resolver
// uses the default keyword rules.
func New(opts Options) *Engine {
	e := &Engine{handle: opts.Handle, resolver: opts.Resolver, logger: opts.Logger}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.handle == nil {
		e.handle = pipeline.NewHandle(BundleLoader(pipeline.WithLogger(e.logger)), pipeline.WithHandleLogger(e.logger))
	}
	if e.resolver == nil {
		e.resolver = intent.NewResolver()
	}
	return e
}

// BundleLoader loads pipelines saved with bundle.Save.
func BundleLoader(opts ...pipeline.Option) pipeline.Loader {
	return func(ctx context.Context, location string) (*pipeline.Pipeline, error) {
		return bundle.Load(ctx, location, opts...)
	}
}

// Result is the full annotation of one utterance.
type Result struct {
	*pipeline.Document
	Intent intent.Result `json:"intent"`
}

// Features reports the capabilities of the loaded pipeline.
type Features struct {
	HasParser  bool `json:"has_parser"`
	HasTextcat bool `json:"has_textcat"`
}

// QueryResult is the compact annotation returned by Query.
type QueryResult struct {
	Text     string            `json:"text"`
	Entities []pipeline.Entity `json:"entities"`
	Intent   intent.Result     `json:"intent"`
	Features Features          `json:"features"`
}

// Parse annotates text and resolves its intent. Blank text fails with
// ErrInvalidInput before any work; without a loaded pipeline it fails
// with ErrModelUnavailable.
func (e *Engine) Parse(text string) (*Result, error) {
	if err := validate(text); err != nil {
		return nil, err
	}
	p, err := e.handle.Snapshot()
	if err != nil {
		return nil, err
	}
	doc := p.Annotate(text)
	return &Result{Document: doc, Intent: e.resolver.Resolve(text, doc.Cats)}, nil
}

// Query is Parse reduced to entities, intent and pipeline features.
func (e *Engine) Query(text string) (*QueryResult, error) {
	if err := validate(text); err != nil {
		return nil, err
	}
	p, err := e.handle.Snapshot()
	if err != nil {
		return nil, err
	}
	doc := p.Annotate(text)
	return &QueryResult{
		Text:     text,
		Entities: doc.Entities,
		Intent:   e.resolver.Resolve(text, doc.Cats),
		Features: Features{HasParser: p.HasParser(), HasTextcat: p.HasTextClassifier()},
	}, nil
}

// Classify resolves the intent of text. Without a loaded pipeline the
// keyword rules decide.
func (e *Engine) Classify(text string) (intent.Result, error) {
	if err := validate(text); err != nil {
		return intent.Result{}, err
	}
	p, err := e.handle.Snapshot()
	if err != nil {
		e.logger.Debug("classifying without a pipeline", zap.Error(err))
		return e.resolver.Fallback(text), nil
	}
	return e.resolver.Resolve(text, p.Annotate(text).Cats), nil
}

// Reload loads the pipeline again from the handle's location. On failure
// the previous pipeline stays in service.
func (e *Engine) Reload(ctx context.Context) error {
	return e.handle.Reload(ctx)
}

// Load points the engine at location and loads it.
func (e *Engine) Load(ctx context.Context, location string) error {
	return e.handle.Load(ctx, location)
}

// ModelLoaded reports whether a pipeline is in service.
func (e *Engine) ModelLoaded() bool { return e.handle.Loaded() }

// Location returns where the pipeline is loaded from.
func (e *Engine) Location() string { return e.handle.Location() }

func validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is empty: %w", internalerr.ErrInvalidInput)
	}
	return nil
}
