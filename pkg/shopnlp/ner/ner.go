// Package ner implements a greedy BIO entity recognizer over token features.
package ner

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
)

// DefaultName is the stage name used when none is given.
const DefaultName = "ner"

const (
	begin  = "B-"
	inside = "I-"
	start  = "<s>"
)

// Recognizer tags tokens left to right, one softmax decision per token
// conditioned on the previous tag. Class 0 is "O"; entity label k owns
// classes 1+2k (B-) and 2+2k (I-).
type Recognizer struct {
	name   string
	labels *labels.Set
	model  *linear.Model
}

var _ pipeline.Trainable = (*Recognizer)(nil)

// New creates an untrained recognizer.
func New(name string) *Recognizer {
	if name == "" {
		name = DefaultName
	}
	return &Recognizer{name: name, labels: labels.NewSet()}
}

func (r *Recognizer) Name() string        { return r.name }
func (r *Recognizer) Kind() pipeline.Kind { return pipeline.KindEntityRecognizer }

// AddLabel registers an entity label. It fails once training has begun.
func (r *Recognizer) AddLabel(label string) (bool, error) {
	if label == "" {
		return false, fmt.Errorf("ner: empty label: %w", internalerr.ErrInvalidInput)
	}
	return r.labels.Add(label)
}

// Labels returns the entity labels in class order.
func (r *Recognizer) Labels() []string { return r.labels.Labels() }

// Begin freezes the label set and allocates zero parameters.
func (r *Recognizer) Begin() error {
	if r.labels.Len() == 0 {
		return fmt.Errorf("ner %s: no labels: %w", r.name, internalerr.ErrInvalidConfig)
	}
	r.labels.Freeze()
	if r.model == nil {
		r.model = linear.NewModel(1 + 2*r.labels.Len())
	}
	return nil
}

// Validate rejects examples whose tags use unknown labels.
func (r *Recognizer) Validate(ex *example.Example) error {
	tags := ex.Tags()
	if len(tags) == 0 || len(tags) != ex.NumTokens() {
		return fmt.Errorf("ner: %d tags for %d tokens: %w", len(tags), ex.NumTokens(), internalerr.ErrMalformedExample)
	}
	for _, tag := range tags {
		if _, ok := r.classOf(tag); !ok {
			return fmt.Errorf("ner: unknown tag %q: %w", tag, internalerr.ErrMalformedExample)
		}
	}
	return nil
}

// Update takes one optimizer step over batch and returns its loss.
func (r *Recognizer) Update(batch []*example.Example, opt linear.SGD) (float64, error) {
	if r.model == nil {
		return 0, fmt.Errorf("ner %s: update before begin: %w", r.name, internalerr.ErrInvalidConfig)
	}
	grad := r.model.NewGradient()
	var loss float64
	for _, ex := range batch {
		tokens := ex.Tokens()
		tags := ex.Tags()
		prev := start
		for i := range tokens {
			class, ok := r.classOf(tags[i])
			if !ok {
				return 0, fmt.Errorf("ner: unknown tag %q: %w", tags[i], internalerr.ErrMalformedExample)
			}
			feats := features(tokens, i, prev)
			gold := make([]float64, r.model.NumClasses())
			gold[class] = 1
			loss += grad.Accumulate(feats, r.model.Predict(feats), gold)
			prev = tags[i]
		}
	}
	opt.Apply(r.model, grad)
	return loss, nil
}

// Annotate sets doc.Ents from the predicted tag sequence.
func (r *Recognizer) Annotate(doc *ingest.Doc) error {
	if r.model == nil {
		return fmt.Errorf("ner %s: %w", r.name, internalerr.ErrModelUnavailable)
	}
	doc.Ents = spans(r.Predict(doc.Tokens))
	return nil
}

// Predict returns one BIO tag per token.
func (r *Recognizer) Predict(tokens []ingest.Token) []string {
	tags := make([]string, len(tokens))
	prev := start
	for i := range tokens {
		probs := r.model.Predict(features(tokens, i, prev))
		best := 0
		for k := 1; k < len(probs); k++ {
			if probs[k] > probs[best] && r.allowed(k, prev) {
				best = k
			}
		}
		tags[i] = r.tagOf(best)
		prev = tags[i]
	}
	return tags
}

// Params exports the model parameters.
func (r *Recognizer) Params() []linear.Param {
	if r.model == nil {
		return nil
	}
	return r.model.Params()
}

// SetParams loads parameters. Begin must have been called.
func (r *Recognizer) SetParams(params []linear.Param) error {
	if r.model == nil {
		return fmt.Errorf("ner %s: set params before begin: %w", r.name, internalerr.ErrInvalidConfig)
	}
	return r.model.SetParams(params)
}

func (r *Recognizer) classOf(tag string) (int, bool) {
	if tag == example.Outside {
		return 0, true
	}
	var offset int
	switch {
	case strings.HasPrefix(tag, begin):
		offset = 1
	case strings.HasPrefix(tag, inside):
		offset = 2
	default:
		return 0, false
	}
	k := r.labels.Index(tag[2:])
	if k < 0 {
		return 0, false
	}
	return offset + 2*k, true
}

func (r *Recognizer) tagOf(class int) string {
	if class == 0 {
		return example.Outside
	}
	label := r.labels.Labels()[(class-1)/2]
	if class%2 == 1 {
		return begin + label
	}
	return inside + label
}

// allowed rejects an I- tag that does not continue an entity of the same label.
func (r *Recognizer) allowed(class int, prev string) bool {
	if class == 0 || class%2 == 1 {
		return true
	}
	label := r.tagOf(class)[2:]
	return prev == begin+label || prev == inside+label
}

// spans decodes BIO tags into labelled token spans.
func spans(tags []string) []ingest.Span {
	var out []ingest.Span
	for i := 0; i < len(tags); {
		if !strings.HasPrefix(tags[i], begin) {
			i++
			continue
		}
		label := tags[i][2:]
		j := i + 1
		for j < len(tags) && tags[j] == inside+label {
			j++
		}
		out = append(out, ingest.Span{Start: i, End: j, Label: label})
		i = j
	}
	return out
}

func features(tokens []ingest.Token, i int, prev string) []string {
	tok := tokens[i]
	feats := []string{
		"w=" + tok.Lower,
		"lemma=" + tok.Lemma,
		"shape=" + shape(tok.Text),
		"pre3=" + prefix(tok.Lower, 3),
		"suf3=" + suffix(tok.Lower, 3),
		"prev=" + prev,
		"prev+w=" + prev + "|" + tok.Lower,
	}
	if tok.LikeNum {
		feats = append(feats, "num")
	}
	if tok.IsPunct {
		feats = append(feats, "punct")
	}
	if tok.IsStop {
		feats = append(feats, "stop")
	}
	if i > 0 {
		feats = append(feats, "w-1="+tokens[i-1].Lower)
	} else {
		feats = append(feats, "bos")
	}
	if i+1 < len(tokens) {
		feats = append(feats, "w+1="+tokens[i+1].Lower)
	} else {
		feats = append(feats, "eos")
	}
	if i > 1 {
		feats = append(feats, "w-2="+tokens[i-2].Lower)
	}
	return feats
}

// shape maps letters to x/X and digits to d, collapsing runs longer than two.
func shape(text string) string {
	var b strings.Builder
	var last rune
	run := 0
	for _, r := range text {
		c := r
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLetter(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		}
		if c == last {
			run++
		} else {
			last, run = c, 1
		}
		if run <= 2 {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func prefix(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		rs = rs[:n]
	}
	return string(rs)
}

func suffix(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		rs = rs[len(rs)-n:]
	}
	return string(rs)
}
