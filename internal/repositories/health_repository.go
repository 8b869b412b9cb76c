package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopnatural/core/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck describes a dependency probe executed during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type dependencyHealthRepository struct {
	checks []DependencyCheck
	now    func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository constructs a HealthRepository that evaluates
// the provided check set concurrently.
func NewDependencyHealthRepository(checks []DependencyCheck) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if check.Name == "" || check.Check == nil {
			return nil, errors.New("health repository: dependency checks require a name and function")
		}
	}
	repo := &dependencyHealthRepository{
		checks: make([]DependencyCheck, len(checks)),
		now:    time.Now,
	}
	copy(repo.checks, checks)
	return repo, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, check := range r.checks {
		check := check
		wg.Add(1)
		go func() {
			defer wg.Done()

			timeout := check.Timeout
			if timeout <= 0 {
				timeout = defaultProbeTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := r.now()
			err := check.Check(checkCtx)
			end := r.now()

			result := domain.SystemHealthCheck{
				Status:    domain.HealthStatusOK,
				Detail:    "ok",
				Latency:   end.Sub(start),
				CheckedAt: end,
			}
			switch {
			case err == nil:
			case errors.Is(err, context.DeadlineExceeded):
				result.Status = domain.HealthStatusError
				result.Detail = "timeout"
				result.Error = err.Error()
			case errors.Is(err, context.Canceled):
				result.Status = domain.HealthStatusError
				result.Detail = "cancelled"
				result.Error = err.Error()
			default:
				result.Status = domain.HealthStatusDegraded
				result.Detail = err.Error()
				result.Error = err.Error()
			}

			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	reportStatus := domain.HealthStatusOK
	for _, result := range results {
		if result.Status == domain.HealthStatusError {
			reportStatus = domain.HealthStatusError
			break
		}
		if result.Status == domain.HealthStatusDegraded {
			reportStatus = domain.HealthStatusDegraded
		}
	}

	return domain.SystemHealthReport{
		Status:      reportStatus,
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}
