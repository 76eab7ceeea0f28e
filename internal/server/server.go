// Package server exposes health, metrics, a session snapshot and a line ingest endpoint over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/chatwatch/internal/connectors"
	"github.com/lewisedginton/chatwatch/internal/session"
	pkgconfig "github.com/lewisedginton/chatwatch/pkg/config"
	"github.com/lewisedginton/chatwatch/pkg/health"
	"github.com/lewisedginton/chatwatch/pkg/health/checkers"
	"github.com/lewisedginton/chatwatch/pkg/httpmiddleware"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

const maxIngestBytes = 1 << 20

// Engine is the part of watchers.Engine the server drives.
type Engine interface {
	connectors.Handler
	Active() bool
	Identity() (player, server string)
	Sessions() []session.Info
	DebugBacklog() int
}

// Config configures the server.
type Config struct {
	HTTP           pkgconfig.HTTPServerConfig
	BaseDir        string
	RelayHealthURL string
	HealthTimeout  time.Duration
	Logger         logger.Logger
	Metrics        *metrics.Metrics
}

// Server is the status and ingest HTTP server.
type Server struct {
	log     logger.Logger
	engine  Engine
	metrics *metrics.Metrics
	health  *health.HealthChecker
	server  *http.Server
}

// New wires the router and health checks. It does not start listening.
func New(cfg Config, engine Engine) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}

	s := &Server{
		log:     cfg.Logger,
		engine:  engine,
		metrics: cfg.Metrics,
		health:  health.New(health.WithLogger(cfg.Logger), health.WithTimeout(cfg.HealthTimeout), health.WithFailureThreshold(1)),
	}

	s.health.AddLivenessCheck(health.NewCheckFunc("engine", func(context.Context) error {
		if !engine.Active() {
			return errors.New("engine is not active")
		}
		return nil
	}))
	if cfg.BaseDir != "" {
		s.health.AddReadinessCheck(checkers.NewWritableDirChecker(cfg.BaseDir, "archive_dir"))
	}
	if cfg.RelayHealthURL != "" {
		s.health.AddReadinessCheck(checkers.NewHTTPChecker(cfg.RelayHealthURL, "relay"))
	}

	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           s.Router(),
		ReadTimeout:       cfg.HTTP.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout(),
		IdleTimeout:       cfg.HTTP.IdleTimeout(),
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	s.log.Info("Status server initialized", logger.IntField("http_port", cfg.HTTP.Port))
	return s, nil
}

// Router builds the chi router with middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	httpmiddleware.ApplyToRouter(r, httpmiddleware.WithLogger(s.log))
	r.Use(s.metrics.HTTPMiddleware())

	r.Get("/health/live", s.health.LivenessHandler())
	r.Get("/health/ready", s.health.ReadinessHandler())
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", s.sessionsHandler)
		r.Post("/lines", s.linesHandler)
		r.Post("/disconnect", s.disconnectHandler)
	})
	return r
}

// Listen starts the HTTP server and returns its error channel plus forced and graceful closers.
func (s *Server) Listen() (chan error, func(), func(), error) {
	errChan := make(chan error, 1)

	go func() {
		s.log.Info("Starting HTTP server", logger.StringField("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	closer := func() {
		s.log.Info("Forcefully closing HTTP server")
		if err := s.Close(); err != nil {
			s.log.Error("Error during forced shutdown", logger.ErrorField(err))
		}
	}

	gracefulCloser := func() {
		s.log.Info("Gracefully closing HTTP server")
		if err := s.GracefulShutdown(); err != nil {
			s.log.Error("Error during graceful shutdown", logger.ErrorField(err))
		}
	}

	return errChan, closer, gracefulCloser, nil
}

// GracefulShutdown waits up to 10s for in-flight requests.
func (s *Server) GracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Close forcefully shuts down the server.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// SessionsResponse is the body of GET /v1/sessions.
type SessionsResponse struct {
	Active       bool           `json:"active"`
	Player       string         `json:"player"`
	Server       string         `json:"server"`
	OpenCount    int            `json:"open_count"`
	DebugBacklog int            `json:"debug_backlog"`
	Sessions     []session.Info `json:"sessions"`
}

// LinesRequest is the JSON body of POST /v1/lines. Line and Lines may both be set.
type LinesRequest struct {
	Line  string   `json:"line,omitempty"`
	Lines []string `json:"lines,omitempty"`
}

// AcceptedResponse reports how many events were handed to the engine.
type AcceptedResponse struct {
	Accepted int `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	player, srv := s.engine.Identity()
	sessions := s.engine.Sessions()
	if sessions == nil {
		sessions = []session.Info{}
	}
	open := 0
	for _, info := range sessions {
		if info.Open {
			open++
		}
	}
	s.writeJSON(w, r, http.StatusOK, SessionsResponse{
		Active:       s.engine.Active(),
		Player:       player,
		Server:       srv,
		OpenCount:    open,
		DebugBacklog: s.engine.DebugBacklog(),
		Sessions:     sessions,
	})
}

func (s *Server) linesHandler(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Active() {
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "engine is not active"})
		return
	}

	lines, err := readLines(w, r)
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	for _, line := range lines {
		s.engine.HandleLine(r.Context(), line)
	}
	s.writeJSON(w, r, http.StatusAccepted, AcceptedResponse{Accepted: len(lines)})
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	s.engine.EndSession(r.Context())
	s.writeJSON(w, r, http.StatusAccepted, AcceptedResponse{Accepted: 1})
}

// readLines accepts either a JSON LinesRequest or a plain-text body with one line per row.
func readLines(w http.ResponseWriter, r *http.Request) ([]string, error) {
	body := http.MaxBytesReader(w, r.Body, maxIngestBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var lines []string
	if mediaType == "application/json" {
		var req LinesRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		if req.Line != "" {
			lines = append(lines, req.Line)
		}
		for _, line := range req.Lines {
			if line != "" {
				lines = append(lines, line)
			}
		}
	} else {
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("no lines in request")
	}
	return lines, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLoggerFromContext(r.Context(), s.log).Error("Failed to encode response", logger.ErrorField(err))
	}
}
