// Package linear implements the sparse multiclass softmax model shared by
// the trainable pipeline stages.
package linear

import (
	"fmt"
	"math"
	"sort"
)

// BiasFeature names the bias row in exported parameters.
const BiasFeature = "__bias__"

const probFloor = 1e-12

// Model holds one weight row per feature and one column per class.
// Parameters start at zero.
type Model struct {
	nClasses int
	weights  map[string][]float64
	bias     []float64
}

// NewModel creates a zero model over nClasses classes.
func NewModel(nClasses int) *Model {
	return &Model{
		nClasses: nClasses,
		weights:  make(map[string][]float64),
		bias:     make([]float64, nClasses),
	}
}

// NumClasses returns the number of output classes.
func (m *Model) NumClasses() int { return m.nClasses }

// NumFeatures returns the number of feature rows.
func (m *Model) NumFeatures() int { return len(m.weights) }

// Logits returns the unnormalized class scores for a feature bag.
// Unknown features contribute nothing.
func (m *Model) Logits(feats []string) []float64 {
	out := append([]float64(nil), m.bias...)
	for _, f := range feats {
		row, ok := m.weights[f]
		if !ok {
			continue
		}
		for k, w := range row {
			out[k] += w
		}
	}
	return out
}

// Predict returns class probabilities for a feature bag.
func (m *Model) Predict(feats []string) []float64 {
	return Softmax(m.Logits(feats))
}

// Softmax normalizes logits into probabilities that sum to 1.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// CrossEntropy returns -Σ gold·log(probs).
func CrossEntropy(probs, gold []float64) float64 {
	var loss float64
	for k, g := range gold {
		if g == 0 {
			continue
		}
		loss -= g * math.Log(math.Max(probs[k], probFloor))
	}
	return loss
}

// Param is one exported parameter row.
type Param struct {
	Feature string
	Values  []float64
}

// Params exports every row, bias first, then features sorted by name.
func (m *Model) Params() []Param {
	out := make([]Param, 0, len(m.weights)+1)
	out = append(out, Param{Feature: BiasFeature, Values: append([]float64(nil), m.bias...)})

	feats := make([]string, 0, len(m.weights))
	for f := range m.weights {
		feats = append(feats, f)
	}
	sort.Strings(feats)
	for _, f := range feats {
		out = append(out, Param{Feature: f, Values: append([]float64(nil), m.weights[f]...)})
	}
	return out
}

// SetParams replaces the model parameters with exported rows.
func (m *Model) SetParams(params []Param) error {
	weights := make(map[string][]float64, len(params))
	bias := make([]float64, m.nClasses)
	for _, p := range params {
		if len(p.Values) != m.nClasses {
			return fmt.Errorf("param %q: %d values for %d classes", p.Feature, len(p.Values), m.nClasses)
		}
		if p.Feature == BiasFeature {
			copy(bias, p.Values)
			continue
		}
		weights[p.Feature] = append([]float64(nil), p.Values...)
	}
	m.weights = weights
	m.bias = bias
	return nil
}

// Gradient accumulates loss gradients over one mini-batch.
type Gradient struct {
	nClasses int
	weights  map[string][]float64
	bias     []float64
}

// NewGradient creates an empty gradient shaped like m.
func (m *Model) NewGradient() *Gradient {
	return &Gradient{
		nClasses: m.nClasses,
		weights:  make(map[string][]float64),
		bias:     make([]float64, m.nClasses),
	}
}

// Accumulate adds the softmax cross-entropy gradient of one instance and
// returns its loss. gold is a target distribution over classes.
func (g *Gradient) Accumulate(feats []string, probs, gold []float64) float64 {
	delta := make([]float64, g.nClasses)
	for k := range delta {
		delta[k] = probs[k] - gold[k]
		g.bias[k] += delta[k]
	}
	for _, f := range feats {
		row, ok := g.weights[f]
		if !ok {
			row = make([]float64, g.nClasses)
			g.weights[f] = row
		}
		for k, d := range delta {
			row[k] += d
		}
	}
	return CrossEntropy(probs, gold)
}

// SGD is plain stochastic gradient descent with L2 decay on touched rows.
type SGD struct {
	LearnRate float64
	L2        float64
}

// Apply performs one update of m with the accumulated gradient.
func (o SGD) Apply(m *Model, g *Gradient) {
	for k, d := range g.bias {
		m.bias[k] -= o.LearnRate * d
	}
	for f, grad := range g.weights {
		row, ok := m.weights[f]
		if !ok {
			row = make([]float64, m.nClasses)
			m.weights[f] = row
		}
		for k, d := range grad {
			row[k] -= o.LearnRate * (d + o.L2*row[k])
		}
	}
}
