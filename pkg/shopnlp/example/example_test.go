package example

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

func raw(text string, ents ...corpus.Entity) corpus.Example {
	return corpus.Example{Text: text, Annotations: corpus.Annotations{Entities: ents}}
}

func TestBuildOneAlignedSpans(t *testing.T) {
	b := NewBuilder(ingest.NewTokenizer(nil))

	ents := []corpus.Entity{
		{Start: 19, End: 22, Label: "PRICE"},
		{Start: 5, End: 12, Label: "PRODUCT"},
	}
	ex, err := b.BuildOne(raw("find laptops under 500", ents...))
	require.NoError(t, err)

	assert.Equal(t, "find laptops under 500", ex.Text())
	assert.Equal(t, ents, ex.Entities(), "spans are reproduced unchanged")
	assert.Equal(t, []string{"O", "B-PRODUCT", "O", "B-PRICE"}, ex.Tags())
	assert.Equal(t, []ingest.Span{
		{Start: 1, End: 2, Label: "PRODUCT"},
		{Start: 3, End: 4, Label: "PRICE"},
	}, ex.Spans())
	assert.Equal(t, 4, ex.NumTokens())
}

func TestBuildOneMultiTokenSpan(t *testing.T) {
	b := NewBuilder(ingest.NewTokenizer(nil))

	ex, err := b.BuildOne(raw("search for iPhone charger", corpus.Entity{Start: 11, End: 25, Label: "PRODUCT"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "O", "B-PRODUCT", "I-PRODUCT"}, ex.Tags())
}

func TestBuildOneMisaligned(t *testing.T) {
	b := NewBuilder(ingest.NewTokenizer(nil))

	tests := []struct {
		name string
		ents []corpus.Entity
	}{
		{"start inside token", []corpus.Entity{{Start: 6, End: 12, Label: "PRODUCT"}}},
		{"end inside token", []corpus.Entity{{Start: 5, End: 11, Label: "PRODUCT"}}},
		{"empty span", []corpus.Entity{{Start: 5, End: 5, Label: "PRODUCT"}}},
		{"past end", []corpus.Entity{{Start: 19, End: 40, Label: "PRICE"}}},
		{"overlap", []corpus.Entity{{Start: 5, End: 18, Label: "PRODUCT"}, {Start: 13, End: 22, Label: "PRICE"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.BuildOne(raw("find laptops under 500", tt.ents...))
			assert.ErrorIs(t, err, internalerr.ErrMisaligned)
		})
	}
}

func TestBuildOneEmptyLabel(t *testing.T) {
	b := NewBuilder(ingest.NewTokenizer(nil))
	_, err := b.BuildOne(raw("find laptops", corpus.Entity{Start: 5, End: 12}))
	assert.ErrorIs(t, err, internalerr.ErrMalformedExample)
}

func TestBuildDropsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := NewBuilder(ingest.NewTokenizer(nil), WithLogger(zap.New(core)))

	built, errs := b.Build([]corpus.Example{
		raw("find laptops", corpus.Entity{Start: 5, End: 12, Label: "PRODUCT"}),
		raw("find laptops", corpus.Entity{Start: 4, End: 12, Label: "PRODUCT"}),
		raw("show me books", corpus.Entity{Start: 8, End: 13, Label: "PRODUCT"}),
	})

	require.Len(t, built, 2)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], internalerr.ErrMisaligned)
	assert.Equal(t, "show me books", built[1].Text())
	assert.Equal(t, 1, logs.FilterMessage("dropping training example").Len())
}

func TestBuildKeepsCats(t *testing.T) {
	b := NewBuilder(ingest.NewTokenizer(nil))
	cats := corpus.OneHot([]string{"greeting", "help"}, "help")

	ex, err := b.BuildOne(corpus.Example{Text: "help me", Annotations: corpus.Annotations{Cats: cats}})
	require.NoError(t, err)
	assert.Equal(t, cats, ex.Cats())
	assert.Equal(t, []string{"O", "O"}, ex.Tags())

	got := ex.Cats()
	got[0].Score = 0.5
	assert.Equal(t, cats, ex.Cats(), "accessors return copies")
}

func TestBuildDefaultCorpusAligns(t *testing.T) {
	c, err := corpus.Default()
	require.NoError(t, err)

	b := NewBuilder(ingest.NewTokenizer(ingest.DefaultStopwords))
	built, errs := b.Build(c.NER)
	assert.Empty(t, errs)
	assert.Len(t, built, len(c.NER))
}
