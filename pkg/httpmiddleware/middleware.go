// Package httpmiddleware assembles the chi middleware chain used by the status and ingest server.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/unrolled/secure"
)

// CORSConfig mirrors the subset of cors.Options the server exposes.
type CORSConfig struct {
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowedOrigins   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// Config selects which middleware ApplyToRouter installs.
type Config struct {
	Logger   logger.Logger
	CORS     *CORSConfig
	Security *secure.Options
	Timeout  time.Duration

	EnableCorrelationID bool
	EnableLogging       bool
	EnableRecovery      bool
	EnableCORS          bool
	EnableSecurity      bool
	EnableRealIP        bool
	EnableTimeout       bool
	EnableHeartbeat     bool
}

// DefaultCORSConfig allows read and ingest calls from any http(s) origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", logger.CorrelationIDHeader},
		AllowedOrigins: []string{"https://*", "http://*"},
		ExposedHeaders: []string{logger.CorrelationIDHeader},
		MaxAge:         300,
	}
}

// DefaultConfig enables everything except logging, which needs a Logger.
func DefaultConfig() Config {
	corsConfig := DefaultCORSConfig()
	return Config{
		CORS:                &corsConfig,
		Timeout:             30 * time.Second,
		EnableCorrelationID: true,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableRealIP:        true,
		EnableTimeout:       true,
		EnableHeartbeat:     true,
	}
}

// WithLogger returns DefaultConfig with request logging through log.
func WithLogger(log logger.Logger) Config {
	cfg := DefaultConfig()
	cfg.Logger = log
	cfg.EnableLogging = true
	return cfg
}

// ApplyToRouter installs the configured middleware, outermost first:
// correlation ID, security headers, real IP, logging, recovery, CORS, timeout, heartbeat.
func ApplyToRouter(router chi.Router, cfg Config) {
	if cfg.EnableCorrelationID {
		router.Use(CorrelationID)
	}
	if cfg.EnableSecurity {
		router.Use(Security(cfg.Security))
	}
	if cfg.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if cfg.EnableLogging && cfg.Logger != nil {
		router.Use(cfg.Logger.HTTPMiddleware)
	}
	if cfg.EnableRecovery {
		router.Use(middleware.Recoverer)
	}
	if cfg.EnableCORS && cfg.CORS != nil {
		router.Use(CORS(*cfg.CORS))
	}
	if cfg.EnableTimeout && cfg.Timeout > 0 {
		router.Use(middleware.Timeout(cfg.Timeout))
	}
	if cfg.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// CorrelationID guarantees a UUID correlation ID on the request and echoes it in the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, id := logger.EnsureHTTPCorrelationID(r)
		w.Header().Set(logger.CorrelationIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// CORS builds the go-chi/cors handler from cfg.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowedOrigins:   cfg.AllowedOrigins,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

// Security adds the unrolled/secure headers. Nil opts uses the library defaults.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		return secure.New().Handler
	}
	return secure.New(*opts).Handler
}
