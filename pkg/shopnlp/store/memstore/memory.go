package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	params map[string][]linear.Param
	runs   []store.Run
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{params: make(map[string][]linear.Param)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// ReplaceParams implements store.Store.
func (s *Store) ReplaceParams(ctx context.Context, stage string, params []linear.Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(params) == 0 {
		delete(s.params, stage)
		return nil
	}
	rows := copyParams(params)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Feature < rows[j].Feature })
	s.params[stage] = rows
	return nil
}

// Params implements store.Store.
func (s *Store) Params(ctx context.Context, stage string) ([]linear.Param, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyParams(s.params[stage]), nil
}

// AddRun implements store.Store.
func (s *Store) AddRun(ctx context.Context, r store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.ID == r.ID {
			return fmt.Errorf("run %s: %w", r.ID, internalerr.ErrDuplicate)
		}
	}
	r.Losses = append([]float64(nil), r.Losses...)
	s.runs = append(s.runs, r)
	return nil
}

// Runs implements store.Store.
func (s *Store) Runs(ctx context.Context) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Run, len(s.runs))
	for i, r := range s.runs {
		r.Losses = append([]float64(nil), r.Losses...)
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func copyParams(params []linear.Param) []linear.Param {
	if params == nil {
		return nil
	}
	out := make([]linear.Param, len(params))
	for i, p := range params {
		out[i] = linear.Param{Feature: p.Feature, Values: append([]float64(nil), p.Values...)}
	}
	return out
}
