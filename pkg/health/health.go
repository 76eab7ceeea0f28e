// Package health runs liveness and readiness probes for the chatwatch process.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// Check is a single named probe. A nil error means healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc wraps fn as a Check called name.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the name of this check.
func (c *CheckFunc) Name() string { return c.name }

// Check executes the check function.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult is the outcome of one probe run.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// HealthStatus aggregates a probe set.
type HealthStatus struct {
	Healthy bool
	Checks  []CheckResult
}

// HealthChecker owns the liveness and readiness probe sets.
// A check only reports unhealthy after failureThreshold consecutive failures.
type HealthChecker struct {
	mu               sync.RWMutex
	livenessChecks   []Check
	readinessChecks  []Check
	timeout          time.Duration
	failureThreshold int
	failureCount     map[string]int
	logger           logger.Logger
}

// Option configures a HealthChecker.
type Option func(*HealthChecker)

// WithTimeout bounds each individual check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) { h.timeout = d }
}

// WithLogger sets the logger for health check operations.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) { h.logger = l }
}

// WithFailureThreshold sets how many consecutive failures mark a check unhealthy. Default 3.
func WithFailureThreshold(threshold int) Option {
	return func(h *HealthChecker) {
		if threshold > 0 {
			h.failureThreshold = threshold
		}
	}
}

// New creates a HealthChecker with the given options.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failureCount:     make(map[string]int),
		logger:           logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck registers a probe that decides whether the process should be restarted.
func (h *HealthChecker) AddLivenessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, check)
}

// AddReadinessCheck registers a probe that decides whether the process is accepting lines.
func (h *HealthChecker) AddReadinessCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, check)
}

// CheckLiveness runs every liveness probe.
func (h *HealthChecker) CheckLiveness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := append([]Check(nil), h.livenessChecks...)
	h.mu.RUnlock()
	return h.run(ctx, checks)
}

// CheckReadiness runs every readiness probe.
func (h *HealthChecker) CheckReadiness(ctx context.Context) (*HealthStatus, error) {
	h.mu.RLock()
	checks := append([]Check(nil), h.readinessChecks...)
	h.mu.RUnlock()
	return h.run(ctx, checks)
}

func (h *HealthChecker) run(ctx context.Context, checks []Check) (*HealthStatus, error) {
	status := &HealthStatus{Healthy: true, Checks: make([]CheckResult, len(checks))}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, chk Check) {
			defer wg.Done()
			status.Checks[idx] = h.probe(ctx, chk)
		}(i, check)
	}
	wg.Wait()

	var failed []string
	for _, result := range status.Checks {
		if !result.Healthy {
			failed = append(failed, result.Name)
		}
	}
	if len(failed) == 0 {
		return status, nil
	}
	sort.Strings(failed)
	status.Healthy = false
	return status, fmt.Errorf("health checks failed: %v", failed)
}

func (h *HealthChecker) probe(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Latency: time.Since(start), Healthy: true}
	fields := []logger.LogField{
		logger.StringField("check", result.Name),
		logger.DurationField("latency", result.Latency),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failureCount[result.Name] = 0
		h.logger.Debug("Health check passed", fields...)
		return result
	}

	h.failureCount[result.Name]++
	failures := h.failureCount[result.Name]
	fields = append(fields, logger.ErrorField(err), logger.IntField("failures", failures))
	if failures < h.failureThreshold {
		h.logger.Debug("Health check failed but below threshold", fields...)
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	h.logger.Warn("Health check failed", fields...)
	return result
}
