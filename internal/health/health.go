package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/matrixise/walletfolio/internal/blockchain"
)

// Pinger is the durable cache tier.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Endpoints reports RPC endpoint health.
type Endpoints interface {
	EndpointsHealth() []blockchain.EndpointHealth
	ChainID(ctx context.Context) (*big.Int, error)
}

// JobClock reports when the wallet refresh job last ran.
type JobClock interface {
	LastRun(name string) (time.Time, error)
	ExpectedInterval(name string) (time.Duration, error)
}

// GasSource reports when gas prices were last refreshed.
type GasSource interface {
	LastRefresh() time.Time
	Interval() time.Duration
}

// Checker performs health checks on application dependencies
type Checker struct {
	store   Pinger
	rpc     Endpoints
	jobs    JobClock
	jobName string
	gas     GasSource
	now     func() time.Time
}

// Option configures optional checks.
type Option func(*Checker)

// WithJob checks that job keeps running on schedule.
func WithJob(jobs JobClock, name string) Option {
	return func(c *Checker) {
		c.jobs = jobs
		c.jobName = name
	}
}

// WithGas checks that gas prices are refreshed on time.
func WithGas(gas GasSource) Option {
	return func(c *Checker) { c.gas = gas }
}

// NewChecker creates a new health checker
func NewChecker(store Pinger, rpc Endpoints, opts ...Option) *Checker {
	c := &Checker{store: store, rpc: rpc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

var startTime = time.Now()

// worse returns the more severe of a and b.
func worse(a, b CheckStatus) CheckStatus {
	rank := map[CheckStatus]int{StatusOK: 0, StatusDegraded: 1, StatusError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Check runs every configured check. The store and RPC checks can fail the
// whole service; job and gas lateness only degrade it.
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overall := StatusOK

	if c.store != nil {
		d := c.checkStore(ctx)
		checks["storage"] = d
		overall = worse(overall, d.Status)
	}

	if c.rpc != nil {
		d := c.checkRPC(ctx)
		checks["rpc_endpoints"] = d
		overall = worse(overall, d.Status)
	}

	if c.jobs != nil {
		d := c.checkJob()
		checks["daemon"] = d
		overall = worse(overall, downgrade(d.Status))
	}

	if c.gas != nil {
		d := c.checkGas()
		checks["gas"] = d
		overall = worse(overall, downgrade(d.Status))
	}

	return HealthResponse{
		Status:    overall,
		Timestamp: c.now(),
		Checks:    checks,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
}

func downgrade(s CheckStatus) CheckStatus {
	if s == StatusError {
		return StatusDegraded
	}
	return s
}

func (c *Checker) checkStore(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		slog.Error("Health check: storage ping failed", "error", err)
		return CheckDetail{
			Status:  StatusError,
			Message: "storage unreachable: " + err.Error(),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: "storage connection healthy",
	}
}

// checkRPC verifies that at least one RPC endpoint is available
func (c *Checker) checkRPC(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := c.rpc.ChainID(ctx); err != nil {
		slog.Error("Health check: RPC endpoint failed", "error", err)
		return CheckDetail{
			Status:  StatusError,
			Message: "RPC endpoint not responding: " + err.Error(),
		}
	}

	endpoints := c.rpc.EndpointsHealth()
	healthy := 0
	for _, e := range endpoints {
		if e.Healthy {
			healthy++
		}
	}

	if healthy == len(endpoints) {
		return CheckDetail{
			Status:  StatusOK,
			Message: "all RPC endpoints healthy",
		}
	}

	return CheckDetail{
		Status:  StatusDegraded,
		Message: fmt.Sprintf("%d/%d RPC endpoints healthy", healthy, len(endpoints)),
	}
}

// lateness classifies a periodic task by the time since its last run. Twice
// the interval is tolerated.
func (c *Checker) lateness(what string, last time.Time, interval time.Duration) CheckDetail {
	if last.IsZero() {
		return CheckDetail{
			Status:  StatusOK,
			Message: what + " not yet executed (startup)",
		}
	}

	since := c.now().Sub(last)
	if interval > 0 && since > 2*interval {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no %s in %s (expected every %s)", what, since.Round(time.Second), interval),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last %s %s ago", what, since.Round(time.Second)),
	}
}

func (c *Checker) checkJob() CheckDetail {
	last, err := c.jobs.LastRun(c.jobName)
	if err != nil {
		return CheckDetail{Status: StatusDegraded, Message: err.Error()}
	}
	interval, err := c.jobs.ExpectedInterval(c.jobName)
	if err != nil {
		return CheckDetail{Status: StatusDegraded, Message: err.Error()}
	}
	return c.lateness("refresh", last, interval)
}

func (c *Checker) checkGas() CheckDetail {
	return c.lateness("gas refresh", c.gas.LastRefresh(), c.gas.Interval())
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
