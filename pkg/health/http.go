package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// Report is the JSON body of /health/live and /health/ready.
type Report struct {
	Probe     string                 `json:"probe"`
	Status    string                 `json:"status"`
	CheckedAt time.Time              `json:"checked_at"`
	Failing   []string               `json:"failing,omitempty"`
	Checks    map[string]CheckReport `json:"checks"`
}

// CheckReport is one probe's entry, keyed by check name (engine, archive_dir, relay).
type CheckReport struct {
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// LivenessHandler answers 200 while every liveness check passes, 503 otherwise.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return h.handler("liveness", h.CheckLiveness)
}

// ReadinessHandler answers 200 while every readiness check passes, 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return h.handler("readiness", h.CheckReadiness)
}

func (h *HealthChecker) handler(probe string, run func(context.Context) (*HealthStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, _ := run(r.Context())
		report := newReport(probe, status)

		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			h.logger.Error("Failed to encode health report", logger.StringField("probe", probe), logger.ErrorField(err))
		}
	}
}

func newReport(probe string, status *HealthStatus) Report {
	report := Report{
		Probe:     probe,
		Status:    "healthy",
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]CheckReport, len(status.Checks)),
	}
	for _, c := range status.Checks {
		report.Checks[c.Name] = CheckReport{
			OK:        c.Healthy,
			Error:     c.Error,
			LatencyMS: float64(c.Latency.Microseconds()) / 1000,
		}
		if !c.Healthy {
			report.Failing = append(report.Failing, c.Name)
		}
	}
	if !status.Healthy {
		report.Status = "unhealthy"
	}
	return report
}
