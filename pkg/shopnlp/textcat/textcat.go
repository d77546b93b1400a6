// Package textcat implements an exclusive-class text classifier over a bag
// of unigrams and bigrams.
package textcat

import (
	"fmt"
	"math"

	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
)

// DefaultName is the stage name used when none is given.
const DefaultName = "textcat"

const sumTolerance = 1e-6

// Classifier scores every label with a softmax, so scores sum to 1 and
// come out in label order.
type Classifier struct {
	name   string
	labels *labels.Set
	model  *linear.Model
}

var _ pipeline.Trainable = (*Classifier)(nil)

// New creates an untrained classifier.
func New(name string) *Classifier {
	if name == "" {
		name = DefaultName
	}
	return &Classifier{name: name, labels: labels.NewSet()}
}

func (c *Classifier) Name() string        { return c.name }
func (c *Classifier) Kind() pipeline.Kind { return pipeline.KindTextClassifier }

// AddLabel registers a category. It fails once training has begun.
func (c *Classifier) AddLabel(label string) (bool, error) {
	if label == "" {
		return false, fmt.Errorf("textcat: empty label: %w", internalerr.ErrInvalidInput)
	}
	return c.labels.Add(label)
}

// Labels returns the categories in score order.
func (c *Classifier) Labels() []string { return c.labels.Labels() }

// Begin freezes the label set and allocates zero parameters.
func (c *Classifier) Begin() error {
	if c.labels.Len() == 0 {
		return fmt.Errorf("textcat %s: no labels: %w", c.name, internalerr.ErrInvalidConfig)
	}
	c.labels.Freeze()
	if c.model == nil {
		c.model = linear.NewModel(c.labels.Len())
	}
	return nil
}

// Validate accepts examples whose cats use known labels, lie in [0, 1]
// and sum to 1.
func (c *Classifier) Validate(ex *example.Example) error {
	cats := ex.Cats()
	if len(cats) == 0 {
		return fmt.Errorf("textcat: no cats: %w", internalerr.ErrMalformedExample)
	}
	var sum float64
	for _, cat := range cats {
		if !c.labels.Contains(cat.Label) {
			return fmt.Errorf("textcat: unknown label %q: %w", cat.Label, internalerr.ErrMalformedExample)
		}
		if cat.Score < 0 || cat.Score > 1 || math.IsNaN(cat.Score) {
			return fmt.Errorf("textcat: %s score %v out of range: %w", cat.Label, cat.Score, internalerr.ErrMalformedExample)
		}
		sum += cat.Score
	}
	if math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("textcat: cats sum to %v: %w", sum, internalerr.ErrMalformedExample)
	}
	return nil
}

// Update takes one optimizer step over batch and returns its loss.
func (c *Classifier) Update(batch []*example.Example, opt linear.SGD) (float64, error) {
	if c.model == nil {
		return 0, fmt.Errorf("textcat %s: update before begin: %w", c.name, internalerr.ErrInvalidConfig)
	}
	grad := c.model.NewGradient()
	var loss float64
	for _, ex := range batch {
		gold := make([]float64, c.labels.Len())
		for _, cat := range ex.Cats() {
			k := c.labels.Index(cat.Label)
			if k < 0 {
				return 0, fmt.Errorf("textcat: unknown label %q: %w", cat.Label, internalerr.ErrMalformedExample)
			}
			gold[k] = cat.Score
		}
		feats := features(ex.Tokens())
		loss += grad.Accumulate(feats, c.model.Predict(feats), gold)
	}
	opt.Apply(c.model, grad)
	return loss, nil
}

// Annotate sets doc.Cats to one score per label, in label order.
func (c *Classifier) Annotate(doc *ingest.Doc) error {
	if c.model == nil {
		return fmt.Errorf("textcat %s: %w", c.name, internalerr.ErrModelUnavailable)
	}
	doc.Cats = c.Predict(doc.Tokens)
	return nil
}

// Predict scores a tokenized text.
func (c *Classifier) Predict(tokens []ingest.Token) []ingest.Score {
	probs := c.model.Predict(features(tokens))
	names := c.labels.Labels()
	out := make([]ingest.Score, len(names))
	for k, name := range names {
		out[k] = ingest.Score{Label: name, Value: probs[k]}
	}
	return out
}

// Params exports the model parameters.
func (c *Classifier) Params() []linear.Param {
	if c.model == nil {
		return nil
	}
	return c.model.Params()
}

// SetParams loads parameters. Begin must have been called.
func (c *Classifier) SetParams(params []linear.Param) error {
	if c.model == nil {
		return fmt.Errorf("textcat %s: set params before begin: %w", c.name, internalerr.ErrInvalidConfig)
	}
	return c.model.SetParams(params)
}

// features is the bag of lowercased unigrams, lemmas and bigrams.
// Punctuation contributes unigrams only.
func features(tokens []ingest.Token) []string {
	feats := make([]string, 0, 3*len(tokens))
	prev := "<s>"
	for _, tok := range tokens {
		feats = append(feats, "w="+tok.Lower)
		if tok.Lemma != tok.Lower {
			feats = append(feats, "lemma="+tok.Lemma)
		}
		if tok.IsPunct {
			continue
		}
		feats = append(feats, "bi="+prev+"|"+tok.Lower)
		prev = tok.Lower
	}
	return feats
}
