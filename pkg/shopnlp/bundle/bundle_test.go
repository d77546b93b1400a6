package bundle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/lexicon"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ner"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
	"github.com/cognicore/shopnlp/pkg/shopnlp/senter"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store/memstore"
	"github.com/cognicore/shopnlp/pkg/shopnlp/textcat"
)

func trainedPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	tok := ingest.NewTokenizer(ingest.DefaultStopwords)
	lex := lexicon.New()
	lex.AddGroup("laptop", []string{"laptops", "notebook"})
	tok.SetLexicon(lex)
	b := example.NewBuilder(tok)

	rec := ner.New("")
	_, err := rec.AddLabel("PRODUCT")
	require.NoError(t, err)
	require.NoError(t, rec.Begin())
	ex, err := b.BuildOne(corpus.Example{Text: "find laptops", Annotations: corpus.Annotations{
		Entities: []corpus.Entity{{Start: 5, End: 12, Label: "PRODUCT"}},
	}})
	require.NoError(t, err)
	_, err = rec.Update([]*example.Example{ex}, linear.SGD{LearnRate: 0.3})
	require.NoError(t, err)

	intents := []string{"greeting", "search_product"}
	cls := textcat.New("")
	for _, l := range intents {
		_, err := cls.AddLabel(l)
		require.NoError(t, err)
	}
	require.NoError(t, cls.Begin())
	hello, err := b.BuildOne(corpus.Example{Text: "hello", Annotations: corpus.Annotations{Cats: corpus.OneHot(intents, "greeting")}})
	require.NoError(t, err)
	_, err = cls.Update([]*example.Example{hello, ex}, linear.SGD{LearnRate: 0.3})
	require.NoError(t, err)

	p := pipeline.New(tok)
	require.NoError(t, p.Add(rec))
	require.NoError(t, p.Add(cls))
	require.NoError(t, p.Add(senter.New("")))
	return p
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "models", "best")
	p := trainedPipeline(t)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := store.Run{ID: ulid.Make().String(), Component: "ner", Kind: "ner", Iterations: 1, Examples: 1,
		Losses: []float64{0.5}, StartedAt: t0, FinishedAt: t0.Add(time.Second)}
	meta, err := Save(ctx, dir, p, run)
	require.NoError(t, err)
	_, err = ulid.Parse(meta.ID)
	assert.NoError(t, err)

	loaded, err := Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, p.Names(), loaded.Names())
	assert.Equal(t, p.Tokenizer().Stopwords(), loaded.Tokenizer().Stopwords())

	for _, name := range []string{"ner", "textcat"} {
		orig, _ := p.Get(name)
		got, ok := loaded.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, orig.(pipeline.Trainable).Labels(), got.(pipeline.Trainable).Labels(), name)
		assert.Equal(t, orig.(pipeline.Trainable).Params(), got.(pipeline.Trainable).Params(), name)
	}

	text := "find notebook. hello!"
	assert.Equal(t, p.Annotate(text), loaded.Annotate(text))
	assert.True(t, loaded.HasEntityRecognizer())
	assert.True(t, loaded.HasTextClassifier())
	assert.True(t, loaded.HasSentenceBoundaries())

	runs, err := Runs(ctx, dir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	read, err := ReadMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, read.ID)
	assert.Equal(t, []StageMeta{
		{Name: "ner", Kind: "ner", Labels: []string{"PRODUCT"}},
		{Name: "textcat", Kind: "textcat", Labels: []string{"greeting", "search_product"}},
		{Name: "sentencizer", Kind: "sentencizer"},
	}, read.Stages)
	assert.Equal(t, []lexicon.Group{{Canonical: "laptop", Variants: []string{"laptops", "notebook"}}}, read.Tokenizer.Lexicon)
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := Save(ctx, dir, trainedPipeline(t))
	require.NoError(t, err)

	p := pipeline.New(ingest.NewTokenizer(nil))
	require.NoError(t, p.Add(senter.New("")))
	second, err := Save(ctx, dir, p)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	loaded, err := Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"sentencizer"}, loaded.Names())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

type opaqueStage struct{}

func (opaqueStage) Name() string               { return "custom" }
func (opaqueStage) Kind() pipeline.Kind        { return pipeline.KindParser }
func (opaqueStage) Annotate(*ingest.Doc) error { return nil }

func TestEncodeRejectsUnknownStage(t *testing.T) {
	p := pipeline.New(ingest.NewTokenizer(nil))
	require.NoError(t, p.Add(opaqueStage{}))
	_, err := Encode(context.Background(), memstore.New(), p)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestDecodeFromMemstore(t *testing.T) {
	ctx := context.Background()
	p := trainedPipeline(t)
	st := memstore.New()

	stages, err := Encode(ctx, st, p)
	require.NoError(t, err)
	loaded, err := Decode(ctx, st, &Meta{Format: FormatVersion, Stages: stages,
		Tokenizer: TokenizerMeta{Stopwords: p.Tokenizer().Stopwords(), Lexicon: p.Tokenizer().Lexicon().Groups()}})
	require.NoError(t, err)
	assert.Equal(t, p.Annotate("find laptops"), loaded.Annotate("find laptops"))
}

func TestDecodeRejectsParser(t *testing.T) {
	_, err := Decode(context.Background(), memstore.New(), &Meta{Stages: []StageMeta{{Name: "parser", Kind: "parser"}}})
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}
