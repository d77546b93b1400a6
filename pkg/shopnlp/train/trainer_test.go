package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ingest"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/ner"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
	"github.com/cognicore/shopnlp/pkg/shopnlp/textcat"
)

var intents = []string{"greeting", "ask_price", "help"}

func catExamples(t *testing.T, raw ...corpus.Example) []*example.Example {
	t.Helper()
	built, errs := example.NewBuilder(ingest.NewTokenizer(ingest.DefaultStopwords)).Build(raw)
	require.Empty(t, errs)
	return built
}

func cat(text, label string) corpus.Example {
	return corpus.Example{Text: text, Annotations: corpus.Annotations{Cats: corpus.OneHot(intents, label)}}
}

func smallCorpus(t *testing.T) []*example.Example {
	return catExamples(t,
		cat("hello", "greeting"),
		cat("hi there", "greeting"),
		cat("hey", "greeting"),
		cat("how much is this", "ask_price"),
		cat("what is the price", "ask_price"),
		cat("what does it cost", "ask_price"),
		cat("help me", "help"),
		cat("what can you do", "help"),
		cat("how does this work", "help"),
	)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Iterations = 10
	return cfg
}

// spyClassifier notes which capabilities the pipeline exposed while it
// was being updated.
type spyClassifier struct {
	*textcat.Classifier
	p       *pipeline.Pipeline
	updates int
	sawNER  bool
}

func (s *spyClassifier) Update(batch []*example.Example, opt linear.SGD) (float64, error) {
	s.updates++
	s.sawNER = s.sawNER || s.p.HasEntityRecognizer()
	return s.Classifier.Update(batch, opt)
}

func TestTrainRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	tr := New(testConfig())
	p := pipeline.New(ingest.NewTokenizer(nil))

	_, err := tr.Train(ctx, p, textcat.New(""), nil, labels.NewSet(intents...))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, err = tr.Train(ctx, p, textcat.New(""), smallCorpus(t), labels.NewSet())
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	assert.Empty(t, p.Names(), "nothing registered on a configuration error")
}

func TestTrainRejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Compound = 0.5
	_, err := New(cfg).Train(context.Background(), pipeline.New(ingest.NewTokenizer(nil)), textcat.New(""), smallCorpus(t), labels.NewSet(intents...))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestTrainIncompleteLabelSet(t *testing.T) {
	c := textcat.New("")
	_, err := c.AddLabel("greeting")
	require.NoError(t, err)
	require.NoError(t, c.Begin())

	_, err = New(testConfig()).Train(context.Background(), pipeline.New(ingest.NewTokenizer(nil)), c, smallCorpus(t), labels.NewSet(intents...))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	assert.ErrorIs(t, err, internalerr.ErrLabelsFrozen)
}

func TestTrainSkipsMalformedAndReports(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := New(testConfig(), WithLogger(zap.New(core)))

	examples := smallCorpus(t)
	examples = append(examples, catExamples(t, corpus.Example{
		Text:        "two labels at once",
		Annotations: corpus.Annotations{Cats: corpus.Cats{{Label: "greeting", Score: 1}, {Label: "help", Score: 1}}},
	})...)

	res, err := tr.Train(context.Background(), pipeline.New(ingest.NewTokenizer(nil)), textcat.New(""), examples, labels.NewSet(intents...))
	require.NoError(t, err)

	assert.Equal(t, 9, res.Examples)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Losses, 10)
	assert.Equal(t, intents, res.Labels)
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed example").Len())
	assert.Equal(t, 2, logs.FilterMessage("training progress").Len(), "one report every 5th iteration")
	assert.Less(t, res.FinalLoss(), res.Losses[0])
}

func TestTrainIsolatesOtherStages(t *testing.T) {
	p := pipeline.New(ingest.NewTokenizer(nil))
	rec := ner.New("")
	_, err := rec.AddLabel("PRODUCT")
	require.NoError(t, err)
	require.NoError(t, rec.Begin())
	require.NoError(t, p.Add(rec))

	spy := &spyClassifier{Classifier: textcat.New(""), p: p}
	_, err = New(testConfig()).Train(context.Background(), p, spy, smallCorpus(t), labels.NewSet(intents...))
	require.NoError(t, err)

	assert.Positive(t, spy.updates)
	assert.False(t, spy.sawNER, "other stages are disabled while training")
	assert.Equal(t, []string{"ner", "textcat"}, p.Names())
	assert.True(t, p.HasEntityRecognizer(), "isolation is lifted afterwards")
	assert.True(t, p.HasTextClassifier())
	assert.Len(t, p.Run("hello").Cats, 3)
}

func TestTrainIsDeterministic(t *testing.T) {
	run := func() (Result, []linear.Param) {
		c := textcat.New("")
		res, err := New(testConfig()).Train(context.Background(), pipeline.New(ingest.NewTokenizer(nil)), c, smallCorpus(t), labels.NewSet(intents...))
		require.NoError(t, err)
		return res, c.Params()
	}

	res1, params1 := run()
	res2, params2 := run()
	assert.Equal(t, res1.Losses, res2.Losses)
	assert.Equal(t, params1, params2)
}

func TestTrainHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testConfig()).Train(ctx, pipeline.New(ingest.NewTokenizer(nil)), textcat.New(""), smallCorpus(t), labels.NewSet(intents...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainRejectsNameClash(t *testing.T) {
	p := pipeline.New(ingest.NewTokenizer(nil))
	require.NoError(t, p.Add(textcat.New("")))
	_, err := New(testConfig()).Train(context.Background(), p, textcat.New(""), smallCorpus(t), labels.NewSet(intents...))
	assert.ErrorIs(t, err, internalerr.ErrDuplicate)
}

func TestShuffleIsIterationScoped(t *testing.T) {
	assert.Equal(t, shuffle(50, 1, 3), shuffle(50, 1, 3))
	assert.NotEqual(t, shuffle(50, 1, 3), shuffle(50, 1, 4))
	assert.ElementsMatch(t, shuffle(50, 1, 3), shuffle(50, 1, 4))
}
