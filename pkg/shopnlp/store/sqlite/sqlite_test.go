package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store/storetest"
)

func open(t *testing.T) store.Store {
	t.Helper()
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "params.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore(t *testing.T) {
	storetest.Run(t, open)
}

func TestReopenKeepsParams(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "params.db")

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	params := []linear.Param{{Feature: "w=hello", Values: []float64{0.123456789012345678, -1}}}
	require.NoError(t, st.ReplaceParams(ctx, "textcat", params))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Params(ctx, "textcat")
	require.NoError(t, err)
	assert.Equal(t, params, got)
}
