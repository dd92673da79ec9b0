package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/metrics"
)

const (
	idleTimeout            = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 1 << 20
	defaultPollInterval    = 5 * time.Second
)

// Server exposes ingest, query and the dashboard over HTTP.
type Server struct {
	cfg       Config
	ingest    Ingester
	query     Querier
	metrics   metrics.Recorder
	dashboard *dashboard
	logger    logger.Logger
}

func New(cfg Config, ing Ingester, q Querier, rec metrics.Recorder) (*Server, error) {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	dash, err := newDashboard(cfg, q)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		ingest:    ing,
		query:     q,
		metrics:   rec,
		dashboard: dash,
		logger:    logger.Component("server"),
	}, nil
}

// Handler returns the routed handler wrapped in logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /data", s.handlePostData)
	mux.HandleFunc("GET /data", s.handleGetData)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /latest", s.handleLatest)
	mux.HandleFunc("GET /alarm", s.handleAlarm)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /{$}", http.RedirectHandler("/dashboard", http.StatusFound))

	if s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	}

	return s.recoverer(s.requestLogger(mux))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errFactory := errors.New()

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(ErrListenFailed, err).WithData(s.cfg.Listen)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errFactory := errors.New()

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  idleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errFactory.Wrap(ErrListenFailed, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdownFailed, err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
