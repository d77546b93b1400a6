// Package train trains pipeline stages one at a time with compounding
// mini-batch SGD.
package train

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/example"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/pipeline"
)

// ReportEvery is the iteration interval of loss reports.
const ReportEvery = 5

// Config controls one component's training run.
type Config struct {
	Iterations int
	Seed       uint64
	Start      float64 // batch size schedule
	Stop       float64
	Compound   float64
	SGD        linear.SGD
}

// DefaultConfig returns 50 iterations, batches 4 → 32 by 1.001 and a
// learn rate of 0.1.
func DefaultConfig() Config {
	return Config{
		Iterations: 50,
		Seed:       1,
		Start:      4,
		Stop:       32,
		Compound:   1.001,
		SGD:        linear.SGD{LearnRate: 0.1},
	}
}

// Result summarizes a finished run.
type Result struct {
	Component string
	Kind      pipeline.Kind
	Labels    []string
	Examples  int
	Skipped   int
	Losses    []float64 // one cumulative loss per iteration
	Started   time.Time
	Finished  time.Time
}

// FinalLoss returns the loss of the last iteration.
func (r Result) FinalLoss() float64 {
	if len(r.Losses) == 0 {
		return 0
	}
	return r.Losses[len(r.Losses)-1]
}

// Trainer runs isolated component training.
type Trainer struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger progress and skipped examples go to.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// New creates a trainer.
func New(cfg Config, opts ...Option) *Trainer {
	t := &Trainer{cfg: cfg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) validate() error {
	c := t.cfg
	if c.Iterations < 1 {
		return fmt.Errorf("iterations %d: %w", c.Iterations, internalerr.ErrInvalidConfig)
	}
	if c.Start < 1 || c.Stop < c.Start || c.Compound < 1 {
		return fmt.Errorf("batch schedule %v→%v×%v: %w", c.Start, c.Stop, c.Compound, internalerr.ErrInvalidConfig)
	}
	if c.SGD.LearnRate <= 0 {
		return fmt.Errorf("learn rate %v: %w", c.SGD.LearnRate, internalerr.ErrInvalidConfig)
	}
	return nil
}

// Train registers c on p (adding it if absent), binds it to the full
// label set, and trains it with every other stage of p isolated.
//
// An empty example set or label set is a configuration error, as is a
// component whose frozen labels do not cover want. Examples the
// component rejects are skipped with a warning. Training runs for the
// configured number of iterations; ctx is checked between iterations.
func (t *Trainer) Train(ctx context.Context, p *pipeline.Pipeline, c pipeline.Trainable, examples []*example.Example, want *labels.Set) (Result, error) {
	res := Result{Component: c.Name(), Kind: c.Kind(), Started: t.now()}

	if err := t.validate(); err != nil {
		return res, err
	}
	if len(examples) == 0 {
		return res, fmt.Errorf("train %s: no examples: %w", c.Name(), internalerr.ErrInvalidConfig)
	}
	if want == nil || want.Len() == 0 {
		return res, fmt.Errorf("train %s: empty label set: %w", c.Name(), internalerr.ErrInvalidConfig)
	}

	if err := register(p, c); err != nil {
		return res, err
	}
	for _, label := range want.Labels() {
		if _, err := c.AddLabel(label); err != nil {
			return res, fmt.Errorf("train %s: bind labels: %w: %w", c.Name(), internalerr.ErrInvalidConfig, err)
		}
	}
	if missing, ok := labels.NewSet(c.Labels()...).Covers(want); !ok {
		return res, fmt.Errorf("train %s: label %q not bound: %w", c.Name(), missing, internalerr.ErrInvalidConfig)
	}
	if err := c.Begin(); err != nil {
		return res, err
	}
	res.Labels = c.Labels()

	valid := make([]*example.Example, 0, len(examples))
	for i, ex := range examples {
		if err := c.Validate(ex); err != nil {
			t.logger.Warn("skipping malformed example",
				zap.String("component", c.Name()),
				zap.Int("index", i),
				zap.String("text", ex.Text()),
				zap.Error(err),
			)
			res.Skipped++
			continue
		}
		valid = append(valid, ex)
	}
	if len(valid) == 0 {
		return res, fmt.Errorf("train %s: all %d examples rejected: %w", c.Name(), len(examples), internalerr.ErrInvalidConfig)
	}
	res.Examples = len(valid)

	restore, err := p.Isolate(c.Name())
	if err != nil {
		return res, err
	}
	defer restore()

	t.logger.Info("training component",
		zap.String("component", c.Name()),
		zap.Strings("labels", res.Labels),
		zap.Int("examples", len(valid)),
		zap.Int("iterations", t.cfg.Iterations),
	)

	sched := Compounding(t.cfg.Start, t.cfg.Stop, t.cfg.Compound)
	batch := make([]*example.Example, 0, int(t.cfg.Stop))
	for iter := 0; iter < t.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		order := shuffle(len(valid), t.cfg.Seed, uint64(iter))
		var loss float64
		for _, b := range Minibatch(len(order), sched) {
			batch = batch[:0]
			for _, idx := range order[b[0]:b[1]] {
				batch = append(batch, valid[idx])
			}
			l, err := c.Update(batch, t.cfg.SGD)
			if err != nil {
				return res, fmt.Errorf("train %s: iteration %d: %w", c.Name(), iter+1, err)
			}
			loss += l
		}
		res.Losses = append(res.Losses, loss)

		if (iter+1)%ReportEvery == 0 {
			t.logger.Info("training progress",
				zap.String("component", c.Name()),
				zap.Int("iteration", iter+1),
				zap.Int("iterations", t.cfg.Iterations),
				zap.Float64("loss", loss),
			)
		}
	}

	res.Finished = t.now()
	return res, nil
}

func register(p *pipeline.Pipeline, c pipeline.Trainable) error {
	existing, ok := p.Get(c.Name())
	if !ok {
		return p.Add(c)
	}
	if existing != pipeline.Stage(c) {
		return fmt.Errorf("train %s: another stage holds the name: %w", c.Name(), internalerr.ErrDuplicate)
	}
	return nil
}

// shuffle returns a permutation of [0, n) that depends only on seed and
// iteration.
func shuffle(n int, seed, iteration uint64) []int {
	rng := rand.New(rand.NewPCG(seed, iteration))
	return rng.Perm(n)
}
