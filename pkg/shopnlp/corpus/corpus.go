// Package corpus loads labeled training data for the entity recognizer and
// the text classifier.
package corpus

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

//go:embed data/shop.yaml
var defaultCorpus []byte

// Entity is a character-offset span annotation, End exclusive.
type Entity struct {
	Start int
	End   int
	Label string
}

// UnmarshalYAML accepts either [start, end, label] or {start, end, label}.
func (e *Entity) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) != 3 {
			return fmt.Errorf("line %d: entity needs [start, end, label], got %d items", node.Line, len(node.Content))
		}
		if err := node.Content[0].Decode(&e.Start); err != nil {
			return err
		}
		if err := node.Content[1].Decode(&e.End); err != nil {
			return err
		}
		return node.Content[2].Decode(&e.Label)
	case yaml.MappingNode:
		var m struct {
			Start int    `yaml:"start"`
			End   int    `yaml:"end"`
			Label string `yaml:"label"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		*e = Entity{Start: m.Start, End: m.End, Label: m.Label}
		return nil
	}
	return fmt.Errorf("line %d: entity must be a sequence or mapping", node.Line)
}

// Cat is one category target.
type Cat struct {
	Label string
	Score float64
}

// Cats keeps category targets in the order they were declared.
type Cats []Cat

// UnmarshalYAML decodes a mapping while preserving key order.
func (c *Cats) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cats must be a mapping", node.Line)
	}
	out := make(Cats, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var cat Cat
		if err := node.Content[i].Decode(&cat.Label); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&cat.Score); err != nil {
			return err
		}
		out = append(out, cat)
	}
	*c = out
	return nil
}

// Annotations holds the gold annotations of one text.
type Annotations struct {
	Cats     Cats     `yaml:"cats,omitempty"`
	Entities []Entity `yaml:"entities,omitempty"`
}

// Example is one raw (text, annotations) pair.
type Example struct {
	Text        string
	Annotations Annotations
}

// Corpus is a versioned training data file.
type Corpus struct {
	Version int
	Intents []string
	Textcat []Example
	NER     []Example
}

type rawExample struct {
	Text        string `yaml:"text"`
	Intent      string `yaml:"intent,omitempty"`
	Annotations `yaml:",inline"`
}

type rawCorpus struct {
	Version int          `yaml:"version"`
	Intents []string     `yaml:"intents"`
	Textcat []rawExample `yaml:"textcat"`
	NER     []rawExample `yaml:"ner"`
}

// Load reads a corpus file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return c, nil
}

// Default returns the embedded campus-shop corpus.
func Default() (*Corpus, error) {
	return Parse(defaultCorpus)
}

// Parse decodes a corpus. An `intent: x` shorthand expands to one-hot cats
// over the declared intents, in declared order.
func Parse(data []byte) (*Corpus, error) {
	var raw rawCorpus
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(raw.Intents))
	for _, name := range raw.Intents {
		declared[name] = true
	}

	c := &Corpus{Version: raw.Version, Intents: raw.Intents}

	for i, r := range raw.Textcat {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("textcat[%d]: empty text: %w", i, internalerr.ErrInvalidInput)
		}
		ex := Example{Text: r.Text, Annotations: r.Annotations}
		if r.Intent != "" {
			if len(r.Cats) > 0 {
				return nil, fmt.Errorf("textcat[%d]: both intent and cats set: %w", i, internalerr.ErrInvalidInput)
			}
			if !declared[r.Intent] {
				return nil, fmt.Errorf("textcat[%d]: intent %q not declared: %w", i, r.Intent, internalerr.ErrInvalidInput)
			}
			ex.Annotations.Cats = OneHot(raw.Intents, r.Intent)
		}
		c.Textcat = append(c.Textcat, ex)
	}

	for i, r := range raw.NER {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("ner[%d]: empty text: %w", i, internalerr.ErrInvalidInput)
		}
		c.NER = append(c.NER, Example{Text: r.Text, Annotations: r.Annotations})
	}

	return c, nil
}

// OneHot builds cats with active at 1.0 and every other label at 0.0.
func OneHot(labels []string, active string) Cats {
	cats := make(Cats, len(labels))
	for i, l := range labels {
		cats[i] = Cat{Label: l}
		if l == active {
			cats[i].Score = 1.0
		}
	}
	return cats
}
