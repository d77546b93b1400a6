// Package storetest holds the behavior every store.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
)

// Run exercises st. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("params round trip", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		params := []linear.Param{
			{Feature: linear.BiasFeature, Values: []float64{0.1, -0.2, 1e-17}},
			{Feature: "w=laptop", Values: []float64{1.0 / 3, 0, -7.25}},
			{Feature: "bi=<s>|find", Values: []float64{0, 0, 0}},
		}
		require.NoError(t, st.ReplaceParams(ctx, "textcat", params))

		got, err := st.Params(ctx, "textcat")
		require.NoError(t, err)

		m := linear.NewModel(3)
		require.NoError(t, m.SetParams(got))
		want := linear.NewModel(3)
		require.NoError(t, want.SetParams(params))
		assert.Equal(t, want.Params(), m.Params())
	})

	t.Run("replace drops old rows", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.ReplaceParams(ctx, "ner", []linear.Param{{Feature: "w=a", Values: []float64{1}}}))
		require.NoError(t, st.ReplaceParams(ctx, "ner", []linear.Param{{Feature: "w=b", Values: []float64{2}}}))
		require.NoError(t, st.ReplaceParams(ctx, "textcat", []linear.Param{{Feature: "w=c", Values: []float64{3}}}))

		got, err := st.Params(ctx, "ner")
		require.NoError(t, err)
		assert.Equal(t, []linear.Param{{Feature: "w=b", Values: []float64{2}}}, got)

		got, err = st.Params(ctx, "textcat")
		require.NoError(t, err)
		assert.Equal(t, []linear.Param{{Feature: "w=c", Values: []float64{3}}}, got)

		missing, err := st.Params(ctx, "parser")
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("runs", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		second := store.Run{ID: "02", Component: "textcat", Kind: "textcat", Iterations: 2, Examples: 10,
			Losses: []float64{3.5, 1.25}, StartedAt: t0.Add(time.Minute), FinishedAt: t0.Add(2 * time.Minute)}
		first := store.Run{ID: "01", Component: "ner", Kind: "ner", Iterations: 1, Examples: 4, Skipped: 1,
			Losses: []float64{9}, StartedAt: t0, FinishedAt: t0.Add(500 * time.Millisecond)}
		require.NoError(t, st.AddRun(ctx, second))
		require.NoError(t, st.AddRun(ctx, first))
		assert.Error(t, st.AddRun(ctx, first), "duplicate id")

		runs, err := st.Runs(ctx)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "01", runs[0].ID)
		assert.Equal(t, []float64{9}, runs[0].Losses)
		assert.Equal(t, 1, runs[0].Skipped)
		assert.True(t, runs[0].FinishedAt.Equal(first.FinishedAt))
		assert.Equal(t, "02", runs[1].ID)
		assert.Equal(t, []float64{3.5, 1.25}, runs[1].Losses)
	})
}
