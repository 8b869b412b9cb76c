package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopnatural/core/internal/domain"
)

// HealthProbe checks one dependency. A nil error means the dependency is
// reachable.
type HealthProbe func(ctx context.Context) error

// HealthReporter collects a dependency health report. The repositories
// package provides the standard implementation.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	version  string
	started  time.Time
	clock    func() time.Time
	probes   map[string]HealthProbe
	reporter HealthReporter
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthVersion sets the reported build version.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) { h.version = version }
}

// WithHealthClock injects a clock for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthProbe registers a named readiness probe.
func WithHealthProbe(name string, probe HealthProbe) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && probe != nil {
			h.probes[name] = probe
		}
	}
}

// WithHealthReporter installs a reporter whose checks are merged with the
// registered probes.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) { h.reporter = reporter }
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		probes: make(map[string]HealthProbe),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.started = h.clock()
	return h
}

// Healthz answers liveness: the process is up.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status": domain.HealthStatusOK,
		"uptime": now.Sub(h.started).String(),
		"time":   now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz answers readiness by probing registered dependencies.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock()

	report := domain.SystemHealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.SystemHealthCheck, len(h.probes)),
		GeneratedAt: now,
	}

	if h.reporter != nil {
		collected, err := h.reporter.Collect(ctx)
		if err != nil {
			report.Status = domain.HealthStatusError
			report.Checks["dependencies"] = domain.SystemHealthCheck{
				Status:    domain.HealthStatusError,
				Error:     err.Error(),
				CheckedAt: now,
			}
		} else {
			if collected.Status != domain.HealthStatusOK {
				report.Status = collected.Status
			}
			for name, check := range collected.Checks {
				report.Checks[name] = check
			}
		}
	}

	for name, probe := range h.probes {
		start := time.Now()
		check := domain.SystemHealthCheck{
			Status:    domain.HealthStatusOK,
			CheckedAt: now,
		}
		if err := probe(ctx); err != nil {
			check.Status = domain.HealthStatusError
			check.Error = err.Error()
			report.Status = domain.HealthStatusError
		}
		check.Latency = time.Since(start)
		report.Checks[name] = check
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":     check.Status,
			"latency_ms": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}
	writeJSONResponse(w, status, map[string]any{
		"status":       report.Status,
		"checks":       checks,
		"generated_at": report.GeneratedAt.UTC().Format(time.RFC3339Nano),
	})
}
