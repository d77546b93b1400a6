// Package labels derives the entity and intent label spaces from a training
// corpus before any component is configured.
package labels

import (
	"fmt"

	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

// Set is an ordered, deduplicated label set. Labels are indexed in
// first-seen order; the set only grows, and stops growing once frozen.
type Set struct {
	order  []string
	index  map[string]int
	frozen bool
}

// NewSet creates a set holding labels in the given order, duplicates dropped.
func NewSet(labels ...string) *Set {
	s := &Set{index: make(map[string]int, len(labels))}
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add appends label if it is new. It reports whether the set changed and
// fails once the set is frozen.
func (s *Set) Add(label string) (bool, error) {
	if _, ok := s.index[label]; ok {
		return false, nil
	}
	if s.frozen {
		return false, fmt.Errorf("add %q: %w", label, internalerr.ErrLabelsFrozen)
	}
	s.index[label] = len(s.order)
	s.order = append(s.order, label)
	return true, nil
}

// Freeze stops the set from growing.
func (s *Set) Freeze() { s.frozen = true }

// Frozen reports whether Freeze was called.
func (s *Set) Frozen() bool { return s.frozen }

// Labels returns a copy of the labels in index order.
func (s *Set) Labels() []string {
	return append([]string(nil), s.order...)
}

// Index returns the position of label, or -1.
func (s *Set) Index(label string) int {
	if i, ok := s.index[label]; ok {
		return i
	}
	return -1
}

// Contains reports whether label is in the set.
func (s *Set) Contains(label string) bool {
	_, ok := s.index[label]
	return ok
}

// Len returns the number of labels.
func (s *Set) Len() int { return len(s.order) }

// Covers returns the first label of want that is missing from the set.
func (s *Set) Covers(want *Set) (missing string, ok bool) {
	for _, l := range want.order {
		if !s.Contains(l) {
			return l, false
		}
	}
	return "", true
}

// FromEntities collects every entity label in the examples.
func FromEntities(examples []corpus.Example) *Set {
	s := NewSet()
	for _, ex := range examples {
		for _, ent := range ex.Annotations.Entities {
			s.Add(ent.Label)
		}
	}
	return s
}

// FromCats collects every category label in the examples, whatever its score.
func FromCats(examples []corpus.Example) *Set {
	s := NewSet()
	for _, ex := range examples {
		for _, cat := range ex.Annotations.Cats {
			s.Add(cat.Label)
		}
	}
	return s
}

// LabelSet holds both label spaces of a corpus.
type LabelSet struct {
	Entity *Set
	Intent *Set
}

// Derive scans the corpus once per component type. Both sets must be
// non-empty for their component to be trainable.
func Derive(c *corpus.Corpus) LabelSet {
	return LabelSet{
		Entity: FromEntities(c.NER),
		Intent: FromCats(c.Textcat),
	}
}
