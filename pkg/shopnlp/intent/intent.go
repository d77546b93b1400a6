// Package intent resolves an utterance to an intent, preferring trained
// classifier scores and falling back to ordered keyword rules.
package intent

import (
	"strings"

	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
)

// Result is a resolved intent.
type Result struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Action     string  `json:"action,omitempty"`
}

// Unknown is returned when no rule matches.
var Unknown = Result{Name: "unknown", Confidence: 0.5}

// Predicate tests lower-cased input text.
type Predicate func(text string) bool

// Rule pairs a predicate with the result it yields.
type Rule struct {
	Name   string
	Match  Predicate
	Result Result
}

// Contains matches text holding any of the keywords as a substring.
func Contains(keywords ...string) Predicate {
	return func(text string) bool {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}
}

// Always matches every text.
func Always() Predicate {
	return func(string) bool { return true }
}

// DefaultRules returns the shopping-assistant fallback table. Order is
// the precedence: the first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "search",
			Match:  Contains("find", "search", "looking for", "show me", "do you have"),
			Result: Result{Name: "search_product", Confidence: 0.75, Action: "search"},
		},
		{
			Name:   "price",
			Match:  Contains("price", "how much", "cost"),
			Result: Result{Name: "ask_price", Confidence: 0.7},
		},
		{
			Name:   "greeting",
			Match:  Contains("hello", "hi", "hey"),
			Result: Result{Name: "greeting", Confidence: 0.9},
		},
		{
			Name:   "purchase",
			Match:  Contains("order", "buy", "purchase"),
			Result: Result{Name: "purchase_intent", Confidence: 0.7, Action: "purchase"},
		},
		{
			Name:   "unknown",
			Match:  Always(),
			Result: Unknown,
		},
	}
}

// Resolver is stateless; one instance may serve concurrent callers.
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver over rules, or DefaultRules when none
// are given.
func NewResolver(rules ...Rule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Resolver{rules: append([]Rule(nil), rules...)}
}

// Resolve uses the trained scores when there are any and the keyword
// rules otherwise. There is no confidence floor: any trained score wins.
func (r *Resolver) Resolve(text string, scores []ingest.Score) Result {
	if res, ok := r.Trained(scores); ok {
		return res
	}
	return r.Fallback(text)
}

// Trained picks the highest score. On a tie the label that comes first in
// scores wins, which for a classifier is label-registry order.
func (r *Resolver) Trained(scores []ingest.Score) (Result, bool) {
	if len(scores) == 0 {
		return Result{}, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Value > best.Value {
			best = s
		}
	}
	return Result{Name: best.Label, Confidence: best.Value}, true
}

// Fallback returns the result of the first rule matching the lower-cased text.
func (r *Resolver) Fallback(text string) Result {
	lower := strings.ToLower(text)
	for _, rule := range r.rules {
		if rule.Match(lower) {
			return rule.Result
		}
	}
	return Unknown
}
