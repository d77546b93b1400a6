package lexicon

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon maps surface forms to a canonical lemma:
//   - Inflections: laptops → laptop, bought → buy
//   - Spelling variants: t-shirt ↔ tshirt
//
// Lookups are case-insensitive. A form with no entry is its own lemma.
type Lexicon struct {
	// canonical -> all variants (canonical first)
	groups map[string][]string

	// canonicals in insertion order, for deterministic export
	order []string

	// variant -> canonical
	reverseIndex map[string]string
}

// Group is one canonical form and its variants.
type Group struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		groups:       make(map[string][]string),
		reverseIndex: make(map[string]string),
	}
}

// LoadFromYAML loads lemma groups from a YAML file.
//
// Expected format:
//
//	synonyms:
//	  - canonical: laptop
//	    variants: [laptops]
//	  - canonical: buy
//	    variants: [buys, bought, buying]
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes the YAML lemma table format accepted by LoadFromYAML.
func Parse(data []byte) (*Lexicon, error) {
	var config struct {
		Synonyms []Group `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	lex := New()
	for _, g := range config.Synonyms {
		lex.AddGroup(g.Canonical, g.Variants)
	}
	return lex, nil
}

// AddGroup adds a canonical form with its variants.
// If the group already exists, old reverse index entries are cleaned up first.
func (l *Lexicon) AddGroup(canonical string, variants []string) {
	canonical = strings.ToLower(strings.TrimSpace(canonical))
	if canonical == "" {
		return
	}

	if oldVariants, exists := l.groups[canonical]; exists {
		for _, oldV := range oldVariants {
			delete(l.reverseIndex, oldV)
		}
	} else {
		l.order = append(l.order, canonical)
	}

	normalized := make([]string, 0, len(variants)+1)
	seen := make(map[string]bool)
	normalized = append(normalized, canonical)
	seen[canonical] = true

	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			normalized = append(normalized, v)
			seen[v] = true
		}
	}

	l.groups[canonical] = normalized
	for _, v := range normalized {
		l.reverseIndex[v] = canonical
	}
}

// Lemma returns the canonical form of a token, or the lower-cased token
// itself when the lexicon has no entry for it.
func (l *Lexicon) Lemma(token string) string {
	token = strings.ToLower(token)
	if canonical, ok := l.reverseIndex[token]; ok {
		return canonical
	}
	return token
}

// Groups returns every group in insertion order.
func (l *Lexicon) Groups() []Group {
	out := make([]Group, 0, len(l.order))
	for _, c := range l.order {
		variants := l.groups[c]
		out = append(out, Group{
			Canonical: c,
			Variants:  append([]string(nil), variants[1:]...),
		})
	}
	return out
}
