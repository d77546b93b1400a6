package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

// Loader builds a pipeline from a persisted location.
type Loader func(ctx context.Context, location string) (*Pipeline, error)

// Handle owns the process-wide loaded pipeline.
//
// Readers take an immutable snapshot; a load builds a fresh pipeline off
// to the side and swaps it in atomically. Loads are serialized. A failed
// load leaves the previous pipeline in place.
type Handle struct {
	load     Loader
	logger   *zap.Logger
	mu       sync.Mutex
	current  atomic.Pointer[Pipeline]
	location atomic.Pointer[string]
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithHandleLogger sets the logger loads are reported to.
func WithHandleLogger(l *zap.Logger) HandleOption {
	return func(h *Handle) { h.logger = l }
}

// NewHandle creates an empty handle. Snapshot fails until a load succeeds.
func NewHandle(load Loader, opts ...HandleOption) *Handle {
	h := &Handle{load: load, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load points the handle at location and loads the pipeline stored there.
// The location is kept only when the load succeeds, or when no pipeline
// is in service yet so a later Reload can retry it.
func (h *Handle) Load(ctx context.Context, location string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.Load() == nil {
		h.location.Store(&location)
	}
	return h.loadLocked(ctx, location)
}

// Reload loads the pipeline again from the current location.
func (h *Handle) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	location := h.Location()
	if location == "" {
		return fmt.Errorf("reload: no pipeline location: %w", internalerr.ErrInvalidConfig)
	}
	return h.loadLocked(ctx, location)
}

// loadLocked swaps in the pipeline at location together with the
// location itself. h.mu must be held.
func (h *Handle) loadLocked(ctx context.Context, location string) error {
	h.logger.Info("loading pipeline", zap.String("location", location))
	p, err := h.load(ctx, location)
	if err != nil {
		h.logger.Error("pipeline load failed", zap.String("location", location), zap.Error(err))
		return fmt.Errorf("load pipeline %s: %w", location, err)
	}
	h.current.Store(p)
	h.location.Store(&location)
	h.logger.Info("pipeline loaded",
		zap.String("location", location),
		zap.Strings("stages", p.Names()),
	)
	return nil
}

// Snapshot returns the current pipeline, or ErrModelUnavailable.
func (h *Handle) Snapshot() (*Pipeline, error) {
	p := h.current.Load()
	if p == nil {
		return nil, internalerr.ErrModelUnavailable
	}
	return p, nil
}

// Loaded reports whether a pipeline is available.
func (h *Handle) Loaded() bool { return h.current.Load() != nil }

// Location returns where the pipeline in service was loaded from, or the
// pending location while none is.
func (h *Handle) Location() string {
	if loc := h.location.Load(); loc != nil {
		return *loc
	}
	return ""
}
