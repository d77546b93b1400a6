package pipeline

import (
	"fmt"

	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
)

// Kind identifies what a stage contributes to a Doc.
type Kind int

const (
	KindEntityRecognizer Kind = iota + 1
	KindTextClassifier
	KindSentencizer
	KindParser
)

var kindNames = map[Kind]string{
	KindEntityRecognizer: "ner",
	KindTextClassifier:   "textcat",
	KindSentencizer:      "sentencizer",
	KindParser:           "parser",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown stage kind %q: %w", s, internalerr.ErrInvalidInput)
}

// Stage annotates a Doc in place. A stage that returns an error must not
// leave partial annotations behind.
type Stage interface {
	Name() string
	Kind() Kind
	Annotate(doc *ingest.Doc) error
}

// Trainable is a stage that owns parameters and a label set.
//
// Labels may be added until Begin; Begin freezes them. Update applies one
// optimizer step over a batch of examples already accepted by Validate and
// returns the batch loss.
type Trainable interface {
	Stage
	AddLabel(label string) (bool, error)
	Labels() []string
	Begin() error
	Validate(ex *example.Example) error
	Update(batch []*example.Example, opt linear.SGD) (float64, error)
	Params() []linear.Param
	SetParams(params []linear.Param) error
}
