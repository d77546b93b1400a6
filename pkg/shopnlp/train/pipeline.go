package train

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/bundle"
	"github.com/cognicore/shopnlp/pkg/shopnlp/config"
	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/intent"
	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ner"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
	"github.com/cognicore/shopnlp/pkg/shopnlp/senter"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
	"github.com/cognicore/shopnlp/pkg/shopnlp/textcat"
)

// Probes are evaluated against a freshly saved pipeline.
var Probes = []string{
	"find laptops under 500",
	"show me cheap books",
	"search for used textbooks",
	"I need a new keyboard",
	"looking for electronics under 100",
	"do you have any hoodies",
	"browse clothing section",
	"show me backpacks",
	"hello",
	"hi there",
	"good morning",
	"hey",
	"how much is this",
	"price of the calculator",
	"what does this cost",
	"how much for the laptop",
	"what do you recommend",
	"suggest something for a student",
	"what's popular",
	"best sellers",
	"what can you do",
	"help me",
	"how does this work",
}

// ComponentConfig combines the shared run settings with one component's
// optimizer settings.
func ComponentConfig(cfg *config.Train, c config.Component) Config {
	return Config{
		Iterations: c.Iterations,
		Seed:       cfg.Seed,
		Start:      cfg.Batch.Start,
		Stop:       cfg.Batch.Stop,
		Compound:   cfg.Batch.Compound,
		SGD:        linear.SGD{LearnRate: c.LearnRate, L2: c.L2},
	}
}

// TrainPipeline trains a blank pipeline on c: the entity recognizer
// first, then the text classifier, then appends a sentencizer when
// configured. The pipeline is saved to cfg.Output, loaded back, and the
// probe utterances are logged against the loaded copy, which is returned.
func TrainPipeline(ctx context.Context, cfg *config.Train, c *corpus.Corpus, opts ...Option) (*pipeline.Pipeline, []Result, error) {
	if cfg == nil {
		cfg = config.DefaultTrain()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := New(Config{}, opts...).logger

	tok, err := cfg.Tokenizer()
	if err != nil {
		return nil, nil, err
	}
	ls := labels.Derive(c)
	builder := example.NewBuilder(tok, example.WithLogger(logger))
	p := pipeline.New(tok, pipeline.WithLogger(logger))

	var results []Result

	nerExamples, dropped := builder.Build(c.NER)
	res, err := New(ComponentConfig(cfg, cfg.NER), opts...).Train(ctx, p, ner.New(""), nerExamples, ls.Entity)
	if err != nil {
		return nil, nil, err
	}
	res.Skipped += len(dropped)
	results = append(results, res)

	catExamples, dropped := builder.Build(c.Textcat)
	res, err = New(ComponentConfig(cfg, cfg.Textcat), opts...).Train(ctx, p, textcat.New(""), catExamples, ls.Intent)
	if err != nil {
		return nil, nil, err
	}
	res.Skipped += len(dropped)
	results = append(results, res)

	if cfg.Sentencizer {
		if err := p.Add(senter.New("")); err != nil {
			return nil, nil, err
		}
	}

	runs := make([]store.Run, len(results))
	for i, r := range results {
		runs[i] = r.Record()
	}
	meta, err := bundle.Save(ctx, cfg.Output, p, runs...)
	if err != nil {
		return nil, nil, fmt.Errorf("save pipeline: %w", err)
	}
	logger.Info("pipeline saved",
		zap.String("dir", cfg.Output),
		zap.String("id", meta.ID),
		zap.Strings("stages", p.Names()),
	)

	loaded, err := bundle.Load(ctx, cfg.Output, pipeline.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("reload pipeline: %w", err)
	}
	Probe(loaded, Probes, logger)
	return loaded, results, nil
}

// Record converts r into a stored training run.
func (r Result) Record() store.Run {
	return store.Run{
		ID:         ulid.Make().String(),
		Component:  r.Component,
		Kind:       r.Kind.String(),
		Iterations: len(r.Losses),
		Examples:   r.Examples,
		Skipped:    r.Skipped,
		Losses:     append([]float64(nil), r.Losses...),
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
	}
}

// ProbeResult is the annotation of one probe utterance.
type ProbeResult struct {
	Text     string
	Intent   intent.Result
	Entities []pipeline.Entity
}

// Probe annotates texts with p and logs each intent and entity list.
func Probe(p *pipeline.Pipeline, texts []string, logger *zap.Logger) []ProbeResult {
	resolver := intent.NewResolver()
	out := make([]ProbeResult, 0, len(texts))
	for _, text := range texts {
		doc := p.Annotate(text)
		res := ProbeResult{
			Text:     text,
			Intent:   resolver.Resolve(text, doc.Cats),
			Entities: doc.Entities,
		}
		ents := make([]string, len(res.Entities))
		for i, e := range res.Entities {
			ents[i] = e.Text + "/" + e.Label
		}
		logger.Info("probe",
			zap.String("text", text),
			zap.String("intent", res.Intent.Name),
			zap.Float64("confidence", res.Intent.Confidence),
			zap.Strings("entities", ents),
		)
		out = append(out, res)
	}
	return out
}
