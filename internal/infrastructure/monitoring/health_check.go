package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthChecker aggregates liveness probes for the monolith's collaborators
// (room store, redis). Background runs keep each probe's last result cached
// so the health endpoint answers from the cache while it is fresh instead of
// blocking on a slow collaborator.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []*healthCheck
}

type healthCheck struct {
	name     string
	probe    func(ctx context.Context) (bool, error)
	interval time.Duration
	timeout  time.Duration

	mu         sync.Mutex
	lastOK     bool
	lastResult string
	lastRun    time.Time
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, probe func(ctx context.Context) (bool, error), interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &healthCheck{
		name:     name,
		probe:    probe,
		interval: interval,
		timeout:  timeout,
	})
}

// CheckAll resolves every probe, preferring a fresh cached result, and
// reports unhealthy if any probe fails.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]*healthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for _, check := range checks {
		healthy, result := check.current(ctx)
		if !healthy {
			status.Status = "unhealthy"
		}
		status.Checks[check.name] = result
	}
	return status
}

// StartBackgroundChecks runs every probe on its interval until ctx ends.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, check := range h.checks {
		go check.loop(ctx)
	}
}

// current reuses the last result while it is younger than the probe's
// interval, probing only when stale.
func (c *healthCheck) current(ctx context.Context) (bool, string) {
	c.mu.Lock()
	fresh := !c.lastRun.IsZero() && time.Since(c.lastRun) < c.interval
	ok, result := c.lastOK, c.lastResult
	c.mu.Unlock()
	if fresh {
		return ok, result
	}
	return c.run(ctx)
}

func (c *healthCheck) run(ctx context.Context) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	healthy, err := c.probe(probeCtx)
	latency := time.Since(start).Round(time.Millisecond)

	var result string
	switch {
	case err != nil:
		healthy = false
		result = err.Error()
	case !healthy:
		result = "check failed"
	default:
		result = fmt.Sprintf("healthy (%s)", latency)
	}

	c.mu.Lock()
	c.lastOK = healthy
	c.lastResult = result
	c.lastRun = time.Now()
	c.mu.Unlock()
	return healthy, result
}

func (c *healthCheck) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}
