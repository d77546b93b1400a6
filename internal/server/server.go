// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/cognicore/shopnlp/pkg/shopnlp"
	"github.com/cognicore/shopnlp/pkg/shopnlp/intent"
	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
)

const maxBodyBytes = 1 << 20

var (
	requestLatency = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "shopnlp_request_seconds",
		Help: "Latency of annotation requests.",
	}, []string{"route"})
	requestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopnlp_request_errors_total",
		Help: "Failed requests by route and status code.",
	}, []string{"route", "code"})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopnlp_cache_lookups_total",
		Help: "Result cache lookups by outcome.",
	}, []string{"result"})
	reloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopnlp_reloads_total",
		Help: "Pipeline reloads by outcome.",
	}, []string{"result"})
)

// Config tunes the result cache. A zero CacheSize disables it.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Server routes requests to an Engine.
type Server struct {
	engine *shopnlp.Engine
	cache  *expirable.LRU[string, any]
	logger *zap.Logger

	// gen counts cache purges. A result is stored only if no purge
	// happened while it was computed.
	gen     atomic.Uint64
	cacheMu sync.Mutex
}

// New creates a server for engine.
func New(engine *shopnlp.Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, logger: logger}
	if cfg.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, any](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s
}

type textRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type parseResponse struct {
	OK     bool            `json:"ok"`
	Result *shopnlp.Result `json:"result"`
}

type queryResponse struct {
	OK bool `json:"ok"`
	*shopnlp.QueryResult
}

type classifyResponse struct {
	OK     bool          `json:"ok"`
	Intent intent.Result `json:"intent"`
}

type reloadResponse struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

type healthResponse struct {
	OK          bool `json:"ok"`
	ModelLoaded bool `json:"model_loaded"`
}

// Routes returns the HTTP handler.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Post("/parse", s.Parse)
	r.Post("/query", s.Query)
	r.Post("/classify", s.Classify)
	r.Post("/reload", s.Reload)
	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) Parse(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("parse"))
	defer timer.ObserveDuration()

	req, ok := s.decode(w, r, "parse")
	if !ok {
		return
	}
	res, err := cached(s, "parse:"+req.Text, func() (*shopnlp.Result, error) {
		return s.engine.Parse(req.Text)
	})
	if err != nil {
		s.fail(w, "parse", err)
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{OK: true, Result: res})
}

func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("query"))
	defer timer.ObserveDuration()

	req, ok := s.decode(w, r, "query")
	if !ok {
		return
	}
	res, err := cached(s, "query:"+req.Text, func() (*shopnlp.QueryResult, error) {
		return s.engine.Query(req.Text)
	})
	if err != nil {
		s.fail(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{OK: true, QueryResult: res})
}

func (s *Server) Classify(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("classify"))
	defer timer.ObserveDuration()

	req, ok := s.decode(w, r, "classify")
	if !ok {
		return
	}
	res, err := s.engine.Classify(req.Text)
	if err != nil {
		s.fail(w, "classify", err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{OK: true, Intent: res})
}

// Reload swaps in the pipeline stored at the engine's location and
// clears the result cache.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(r.Context()); err != nil {
		reloads.WithLabelValues("error").Inc()
		s.fail(w, "reload", err)
		return
	}
	reloads.WithLabelValues("ok").Inc()
	s.purge()
	writeJSON(w, http.StatusOK, reloadResponse{OK: true, Model: s.engine.Location()})
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, ModelLoaded: s.engine.ModelLoaded()})
}

// cached returns the cached value for key or computes and stores it.
// Errors are not cached, nor are results that straddle a purge.
func cached[T any](s *Server, key string, compute func() (T, error)) (T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if t, ok := v.(T); ok {
				cacheLookups.WithLabelValues("hit").Inc()
				return t, nil
			}
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}
	gen := s.gen.Load()
	v, err := compute()
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		s.cacheMu.Lock()
		if s.gen.Load() == gen {
			s.cache.Add(key, v)
		}
		s.cacheMu.Unlock()
	}
	return v, nil
}

// purge drops every cached result and any result still being computed.
func (s *Server) purge() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gen.Add(1)
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, route string) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.fail(w, route, fmt.Errorf("request body: %w: %w", internalerr.ErrInvalidInput, err))
		return req, false
	}
	return req, true
}

func (s *Server) fail(w http.ResponseWriter, route string, err error) {
	code := statusOf(err)
	requestErrors.WithLabelValues(route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("route", route), zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{OK: false, Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, internalerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, internalerr.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe serves handler on addr with at most maxConns
// connections open at once, until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, maxConns int, handler http.Handler, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	logger.Info("starting server", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", maxConns))
	return serve(ctx, ln, handler, logger)
}

// serve runs an http.Server on ln until ctx is cancelled or serving fails.
// It returns only after the shutdown goroutine has finished.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	err := srv.Serve(ln)
	cancel()
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
