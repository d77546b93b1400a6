package linear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float64{1, 2, 3, 1000})
	var sum float64
	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Nil(t, Softmax(nil))
}

func TestZeroModelIsUniform(t *testing.T) {
	m := NewModel(4)
	probs := m.Predict([]string{"w=laptop"})
	for _, p := range probs {
		assert.InDelta(t, 0.25, p, 1e-12)
	}
}

func TestCrossEntropy(t *testing.T) {
	assert.InDelta(t, -math.Log(0.5), CrossEntropy([]float64{0.5, 0.5}, []float64{1, 0}), 1e-12)
	assert.Equal(t, 0.0, CrossEntropy([]float64{1, 0}, []float64{1, 0}))
	assert.False(t, math.IsInf(CrossEntropy([]float64{0, 1}, []float64{1, 0}), 1))
}

func TestSGDReducesLoss(t *testing.T) {
	m := NewModel(2)
	opt := SGD{LearnRate: 0.5}
	data := []struct {
		feats []string
		gold  []float64
	}{
		{[]string{"w=hello"}, []float64{1, 0}},
		{[]string{"w=price"}, []float64{0, 1}},
	}

	epoch := func() float64 {
		g := m.NewGradient()
		var loss float64
		for _, d := range data {
			loss += g.Accumulate(d.feats, m.Predict(d.feats), d.gold)
		}
		opt.Apply(m, g)
		return loss
	}

	first := epoch()
	var last float64
	for i := 0; i < 50; i++ {
		last = epoch()
	}
	assert.Less(t, last, first)

	probs := m.Predict([]string{"w=hello"})
	assert.Greater(t, probs[0], probs[1])
	probs = m.Predict([]string{"w=price"})
	assert.Greater(t, probs[1], probs[0])
}

func TestL2ShrinksWeights(t *testing.T) {
	m := NewModel(2)
	require.NoError(t, m.SetParams([]Param{{Feature: "w=a", Values: []float64{1, -1}}}))

	g := m.NewGradient()
	g.weights["w=a"] = []float64{0, 0}
	SGD{LearnRate: 0.1, L2: 1}.Apply(m, g)

	p := m.Params()
	require.Len(t, p, 2)
	assert.InDelta(t, 0.9, p[1].Values[0], 1e-12)
	assert.InDelta(t, -0.9, p[1].Values[1], 1e-12)
}

func TestParamsRoundTrip(t *testing.T) {
	m := NewModel(3)
	g := m.NewGradient()
	g.Accumulate([]string{"w=b", "w=a"}, m.Predict(nil), []float64{0, 1, 0})
	SGD{LearnRate: 0.3}.Apply(m, g)

	params := m.Params()
	require.Len(t, params, 3)
	assert.Equal(t, BiasFeature, params[0].Feature)
	assert.Equal(t, "w=a", params[1].Feature)
	assert.Equal(t, "w=b", params[2].Feature)

	loaded := NewModel(3)
	require.NoError(t, loaded.SetParams(params))
	assert.Equal(t, params, loaded.Params())
	assert.Equal(t, m.Logits([]string{"w=a", "w=b"}), loaded.Logits([]string{"w=a", "w=b"}))
}

func TestSetParamsRejectsWrongWidth(t *testing.T) {
	m := NewModel(2)
	assert.Error(t, m.SetParams([]Param{{Feature: "w=a", Values: []float64{1}}}))
}
