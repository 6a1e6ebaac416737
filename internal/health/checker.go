// Package health tracks the reachability of the ledger's backing services
// (database, key-value store, payout rail) and reports readiness.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Check probes one dependency. A nil error means it is reachable.
type Check func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, up bool)

// Status is the last observed state of one dependency.
type Status struct {
	Name        string    `json:"name"`
	Healthy     bool      `json:"healthy"`
	FailCount   int       `json:"fail_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Checker runs periodic dependency probes. A dependency is reported
// degraded once it has failed FailThreshold consecutive probes, and healthy
// again after the next success.
type Checker struct {
	mu        sync.Mutex
	checks    map[string]Check
	status    map[string]*Status
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker with no dependencies registered.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		checks: make(map[string]Check),
		status: make(map[string]*Status),
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Register adds a named dependency. It starts out healthy.
func (h *Checker) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	h.status[name] = &Status{Name: name, Healthy: true}
}

// Run probes every CheckInterval until ctx is cancelled.
func (h *Checker) Run(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every registered dependency concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := check(probeCtx)
			cancel()
			h.record(name, err)
		}(name, check)
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	st := h.status[name]
	wasHealthy := st.Healthy
	st.LastChecked = time.Now().UTC()
	if err == nil {
		st.FailCount = 0
		st.LastError = ""
		st.Healthy = true
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Healthy = false
		}
	}
	count, healthy := st.FailCount, st.Healthy
	h.mu.Unlock()

	switch {
	case healthy && !wasHealthy:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case !healthy && wasHealthy:
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}

// Snapshot returns every dependency's status sorted by name, and whether
// all of them are healthy.
func (h *Checker) Snapshot() ([]Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Status, 0, len(h.status))
	ready := true
	for _, st := range h.status {
		out = append(out, *st)
		ready = ready && st.Healthy
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, ready
}

// Handler serves the readiness report: 200 when every dependency is
// healthy, 503 otherwise.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deps, ready := h.Snapshot()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "dependencies": deps})
	}
}

// HTTPCheck reports a remote endpoint reachable when it answers a HEAD (or,
// failing that, a GET) with any status below 500.
func HTTPCheck(client *http.Client, url string) Check {
	return func(ctx context.Context) error {
		var lastErr error
		for _, method := range []string{http.MethodHead, http.MethodGet} {
			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				continue
			}
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
			lastErr = fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
		}
		return lastErr
	}
}
