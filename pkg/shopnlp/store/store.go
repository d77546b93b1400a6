package store

import (
	"context"
	"time"

	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
)

// Store persists trained stage parameters and training history.
type Store interface {
	Close() error

	// Parameters
	ReplaceParams(ctx context.Context, stage string, params []linear.Param) error
	Params(ctx context.Context, stage string) ([]linear.Param, error)

	// Training runs
	AddRun(ctx context.Context, r Run) error
	Runs(ctx context.Context) ([]Run, error)
}

// Run records one component training run.
type Run struct {
	ID         string
	Component  string
	Kind       string
	Iterations int
	Examples   int
	Skipped    int
	Losses     []float64
	StartedAt  time.Time
	FinishedAt time.Time
}
