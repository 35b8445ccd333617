// Package health reports whether the detector's dependencies are reachable.
// Each dependency registers a Check; readiness is the worst status among
// them, so an optional dependency such as the result cache can degrade the
// service without taking it out of rotation.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 2 * time.Second

type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
}

type Checker struct {
	mu           sync.RWMutex
	checks       map[string]Check
	checkTimeout time.Duration
	started      time.Time
	last         Status
	logger       *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks:       make(map[string]Check),
		checkTimeout: DefaultCheckTimeout,
		started:      time.Now(),
		last:         StatusUp,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check for name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every dependency in parallel. A check that outlives its
// timeout is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var (
		mu         sync.Mutex
		components = make(map[string]ComponentHealth, len(checks))
		g          errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			result := c.probe(ctx, check)
			mu.Lock()
			components[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := StatusUp
	for _, comp := range components {
		if comp.Status.rank() > status.rank() {
			status = comp.Status
		}
	}
	c.noteTransition(status, components)

	return Report{
		Status:     status,
		Components: components,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func (c *Checker) probe(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

func (c *Checker) noteTransition(status Status, components map[string]ComponentHealth) {
	c.mu.Lock()
	prev := c.last
	c.last = status
	c.mu.Unlock()
	if prev == status {
		return
	}
	failing := make([]string, 0)
	for name, comp := range components {
		if comp.Status != StatusUp {
			failing = append(failing, name)
		}
	}
	if status == StatusUp {
		c.logger.Info("readiness recovered", "previous", prev)
		return
	}
	c.logger.Warn("readiness changed", "status", status, "previous", prev, "failing", failing)
}

// PingCheck adapts a ping function into a Check. A nil ping means the
// dependency is not configured. Failures of an optional dependency report
// degraded instead of down.
func PingCheck(ping func(ctx context.Context) error, optional bool) Check {
	failed := StatusDown
	if optional {
		failed = StatusDegraded
	}
	return func(ctx context.Context) ComponentHealth {
		if ping == nil {
			return ComponentHealth{Status: failed, Message: "not configured"}
		}
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// LiveHandler answers liveness probes without touching dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes: 200 unless some dependency is down
// or degraded.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status != StatusUp {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
