// Package logger is the structured logger shared by every chatwatch component. It wraps
// logrus behind a small interface with typed fields.
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries
	CorrelationIDFieldKey = "correlation_id"
)

type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// LogField is one key/value pair attached to an entry.
type LogField struct {
	Key   string
	Value string
}

// Logger is implemented by the logrus-backed logger and NewNopLogger.
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
	HTTPMiddleware(next http.Handler) http.Handler
}

// Config represents logger configuration
type Config struct {
	Level   Level
	Format  string    // "json" (default) or "text"
	Service string    // added to every entry as "service" when set
	Output  io.Writer // defaults to os.Stdout
}

var logrusLevels = map[Level]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

type logger struct {
	entry  *logrus.Logger
	fields logrus.Fields
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) Logger {
	l := logrus.New()
	if config.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)

	level, ok := logrusLevels[config.Level]
	if !ok {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	fields := logrus.Fields{}
	if config.Service != "" {
		fields["service"] = config.Service
	}
	return &logger{entry: l, fields: fields}
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() Logger {
	return NewLogger(Config{Level: ErrorLevel, Output: io.Discard})
}

// WithFields returns a child logger; the receiver is not modified.
func (l *logger) WithFields(fields ...LogField) Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return &logger{entry: l.entry, fields: merged}
}

// WithCorrelationID returns a child logger tagged with id.
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Info(msg string, fields ...LogField)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...LogField) { l.log(logrus.ErrorLevel, msg, fields) }
func (l *logger) Debug(msg string, fields ...LogField) { l.log(logrus.DebugLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...LogField)  { l.log(logrus.WarnLevel, msg, fields) }

func (l *logger) log(level logrus.Level, msg string, fields []LogField) {
	if !l.entry.IsLevelEnabled(level) {
		return
	}
	all := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for _, f := range fields {
		all[f.Key] = f.Value
	}
	l.entry.WithFields(all).Log(level, msg)
}

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: strconv.Itoa(value)}
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// CorrespondentField tags an entry with the other party of a private exchange.
func CorrespondentField(name string) LogField {
	return StringField("correspondent", name)
}

// ServerField tags an entry with the server/world key.
func ServerField(server string) LogField {
	return StringField("server", server)
}

// FileField tags an entry with an archive file path.
func FileField(path string) LogField {
	return StringField("file", path)
}

// SessionIDField tags an entry with a conversation session ID.
func SessionIDField(id string) LogField {
	return StringField("session_id", id)
}

// ReasonField tags an entry with why a session ended.
func ReasonField(reason string) LogField {
	return StringField("reason", reason)
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// WithCorrelationIDContext adds correlation ID to context
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext retrieves correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return correlationID
	}
	return ""
}

// EnsureHTTPCorrelationID keeps a valid UUID from the request header or generates one,
// and stores it in the request context.
func EnsureHTTPCorrelationID(r *http.Request) (*http.Request, string) {
	correlationID := r.Header.Get(CorrelationIDHeader)
	if _, err := uuid.Parse(correlationID); err != nil {
		correlationID = uuid.New().String()
		r.Header.Set(CorrelationIDHeader, correlationID)
	}
	return r.WithContext(WithCorrelationIDContext(r.Context(), correlationID)), correlationID
}

// GetLoggerFromContext returns baseLogger tagged with the context's correlation ID, if any.
func GetLoggerFromContext(ctx context.Context, baseLogger Logger) Logger {
	if correlationID := GetCorrelationIDFromContext(ctx); correlationID != "" {
		return baseLogger.WithCorrelationID(correlationID)
	}
	return baseLogger
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMiddleware logs one debug entry per request served.
func (l *logger) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, correlationID := EnsureHTTPCorrelationID(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		l.WithFields(
			StringField("client_ip", r.RemoteAddr),
			StringField("http_method", r.Method),
			StringField("http_path", r.URL.Path),
			CorrelationIDField(correlationID),
			IntField("http_status", wrapped.statusCode),
			IntField("response_bytes", wrapped.bytesWritten),
			DurationField("duration", time.Since(start)),
		).Debug("HTTP request served")
	})
}
