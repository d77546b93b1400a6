package shopnlp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/shopnlp/pkg/shopnlp/bundle"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/intent"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
	"github.com/cognicore/shopnlp/pkg/shopnlp/textcat"
)

// tiedPipeline classifies every text as greeting and ask_price with equal
// scores.
func tiedPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	cls := textcat.New("")
	for _, l := range []string{"greeting", "ask_price"} {
		_, err := cls.AddLabel(l)
		require.NoError(t, err)
	}
	require.NoError(t, cls.Begin())
	require.NoError(t, cls.SetParams([]linear.Param{{Feature: linear.BiasFeature, Values: []float64{0.3, 0.3}}}))

	p := pipeline.New(ingest.NewTokenizer(ingest.DefaultStopwords))
	require.NoError(t, p.Add(cls))
	return p
}

func engineFor(t *testing.T, p *pipeline.Pipeline) *Engine {
	t.Helper()
	h := pipeline.NewHandle(func(context.Context, string) (*pipeline.Pipeline, error) { return p, nil })
	require.NoError(t, h.Load(context.Background(), "memory"))
	return New(Options{Handle: h})
}

func TestEngineRejectsBlankInput(t *testing.T) {
	e := engineFor(t, pipeline.New(ingest.NewTokenizer(nil)))
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := e.Parse(text)
		assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
		_, err = e.Query(text)
		assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
		_, err = e.Classify(text)
		assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
	}
}

func TestEngineUnavailable(t *testing.T) {
	e := New(Options{})
	assert.False(t, e.ModelLoaded())

	_, err := e.Parse("hello")
	assert.ErrorIs(t, err, internalerr.ErrModelUnavailable)
	_, err = e.Query("hello")
	assert.ErrorIs(t, err, internalerr.ErrModelUnavailable)

	// blank input is rejected before availability is checked
	_, err = e.Parse("  ")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	res, err := e.Classify("how much is this")
	require.NoError(t, err)
	assert.Equal(t, intent.Result{Name: "ask_price", Confidence: 0.7}, res)

	assert.ErrorIs(t, e.Reload(context.Background()), internalerr.ErrInvalidConfig)
}

func TestEngineParseDegrades(t *testing.T) {
	e := engineFor(t, pipeline.New(ingest.NewTokenizer(nil)))

	res, err := e.Parse("hello world")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, res.Sentences)
	assert.Empty(t, res.NounChunks)
	assert.Empty(t, res.Deps)
	assert.Empty(t, res.Entities)
	assert.Len(t, res.Tokens, 2)
	assert.Equal(t, intent.Result{Name: "greeting", Confidence: 0.9}, res.Intent)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	for _, key := range []string{"tokens", "entities", "noun_chunks", "sentences", "deps", "intent"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, []any{}, body["noun_chunks"])
}

func TestEngineFallbackOrder(t *testing.T) {
	e := engineFor(t, pipeline.New(ingest.NewTokenizer(nil)))

	res, err := e.Parse("hi, do you have laptops")
	require.NoError(t, err)
	assert.Equal(t, intent.Result{Name: "search_product", Confidence: 0.75, Action: "search"}, res.Intent)
}

func TestEngineTrainedTieIsStable(t *testing.T) {
	e := engineFor(t, tiedPipeline(t))

	first, err := e.Classify("anything at all")
	require.NoError(t, err)
	assert.Equal(t, "greeting", first.Name)
	assert.InDelta(t, 0.5, first.Confidence, 1e-12)

	for i := 0; i < 50; i++ {
		again, err := e.Classify("anything at all")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngineQueryFeatures(t *testing.T) {
	e := engineFor(t, tiedPipeline(t))

	q, err := e.Query("how much is this")
	require.NoError(t, err)
	assert.Equal(t, "how much is this", q.Text)
	assert.Equal(t, Features{HasParser: false, HasTextcat: true}, q.Features)
	assert.Equal(t, "greeting", q.Intent.Name, "trained scores win over keyword rules")
	assert.Empty(t, q.Entities)
}

func TestEngineReloadKeepsPreviousOnFailure(t *testing.T) {
	p := tiedPipeline(t)
	fail := false
	h := pipeline.NewHandle(func(context.Context, string) (*pipeline.Pipeline, error) {
		if fail {
			return nil, errors.New("disk gone")
		}
		return p, nil
	})
	e := New(Options{Handle: h})
	require.NoError(t, e.Load(context.Background(), "somewhere"))
	assert.Equal(t, "somewhere", e.Location())

	fail = true
	assert.Error(t, e.Reload(context.Background()))
	assert.True(t, e.ModelLoaded())
	_, err := e.Parse("hello")
	assert.NoError(t, err)
}

func TestEngineLoadsBundle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "best")
	_, err := bundle.Save(ctx, dir, tiedPipeline(t))
	require.NoError(t, err)

	e := New(Options{})
	require.NoError(t, e.Load(ctx, dir))
	assert.True(t, e.ModelLoaded())

	res, err := e.Parse("hello")
	require.NoError(t, err)
	assert.Equal(t, "greeting", res.Intent.Name)
	assert.Len(t, res.Cats, 2)
}
