package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/lexicon"
)

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

// Batch is the compounding mini-batch schedule.
type Batch struct {
	Start    float64 `yaml:"start"`
	Stop     float64 `yaml:"stop"`
	Compound float64 `yaml:"compound"`
}

// Component holds the optimizer settings of one trainable stage.
type Component struct {
	Iterations int     `yaml:"iterations"`
	LearnRate  float64 `yaml:"learn_rate"`
	L2         float64 `yaml:"l2"`
}

// Train is the training run configuration.
type Train struct {
	Corpus      string    `yaml:"corpus"` // empty: embedded default corpus
	Output      string    `yaml:"output"`
	Seed        uint64    `yaml:"seed"`
	Sentencizer bool      `yaml:"sentencizer"`
	Stoplist    string    `yaml:"stoplist"`
	Lexicon     string    `yaml:"lexicon"`
	Batch       Batch     `yaml:"batch"`
	NER         Component `yaml:"ner"`
	Textcat     Component `yaml:"textcat"`
}

// DefaultTrain returns the configuration used when no file is given.
func DefaultTrain() *Train {
	component := Component{Iterations: 50, LearnRate: 0.1}
	return &Train{
		Output:      "models/best",
		Seed:        1,
		Sentencizer: true,
		Batch:       Batch{Start: 4, Stop: 32, Compound: 1.001},
		NER:         component,
		Textcat:     component,
	}
}

// LoadTrain reads a training config. Fields absent from the file keep
// their defaults.
func LoadTrain(path string) (*Train, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultTrain()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the schedule and optimizer settings.
func (t *Train) Validate() error {
	if t.Output == "" {
		return fmt.Errorf("output: empty: %w", internalerr.ErrInvalidConfig)
	}
	if t.Batch.Start < 1 || t.Batch.Stop < t.Batch.Start || t.Batch.Compound < 1 {
		return fmt.Errorf("batch %+v: need 1 <= start <= stop and compound >= 1: %w", t.Batch, internalerr.ErrInvalidConfig)
	}
	for name, c := range map[string]Component{"ner": t.NER, "textcat": t.Textcat} {
		if c.Iterations < 1 {
			return fmt.Errorf("%s.iterations %d: %w", name, c.Iterations, internalerr.ErrInvalidConfig)
		}
		if c.LearnRate <= 0 || c.L2 < 0 {
			return fmt.Errorf("%s: learn_rate %v, l2 %v: %w", name, c.LearnRate, c.L2, internalerr.ErrInvalidConfig)
		}
	}
	return nil
}

// Tokenizer builds the shared tokenizer from the stoplist and lexicon
// files. Without a stoplist, ingest.DefaultStopwords is used.
func (t *Train) Tokenizer() (*ingest.Tokenizer, error) {
	stops := ingest.DefaultStopwords
	if t.Stoplist != "" {
		sl, err := LoadStoplist(t.Stoplist)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		stops = sl.Terms
	}
	tok := ingest.NewTokenizer(stops)

	if t.Lexicon != "" {
		lex, err := lexicon.LoadFromYAML(t.Lexicon)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		tok.SetLexicon(lex)
	}
	return tok, nil
}
