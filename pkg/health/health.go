// Package health implements liveness and readiness probes for HTTP services.
//
// All registered probes are driven by a single scheduler goroutine that runs
// them on a shared interval. A probe flips to failing only after
// failureThreshold consecutive errors, and back to passing after
// successThreshold consecutive successes, so a single transient error does
// not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means the component is fine.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

type probeKind int

const (
	probeLiveness probeKind = iota
	probeReadiness
)

// probe is one registered check plus its debounce state. All fields after
// check are owned by the scheduler goroutine; snapshots for the HTTP
// endpoints go through Health.mu.
type probe struct {
	name    string
	kind    probeKind
	timeout time.Duration
	check   CheckFunc

	fails     int
	successes int
	passing   bool
	lastErr   error
}

func (p *probe) observe(err error) {
	p.lastErr = err
	if err != nil {
		p.successes = 0
		if p.fails++; p.fails >= defaultFailureThreshold {
			p.passing = false
		}
		return
	}
	p.fails = 0
	if p.successes++; p.successes >= defaultSuccessThreshold {
		p.passing = true
	}
}

// Health runs registered probes and serves their results over HTTP.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Health with no probes. The service reports not-ready until
// SetReady(true) is called after startup completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez. Liveness probes should catch
// states the process cannot recover from on its own, such as goroutine leaks.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, probeLiveness, timeout, check)
}

// AddReadinessCheck registers a probe for /readyz. Readiness probes cover
// dependencies the service needs to do useful work, such as its database.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, probeReadiness, timeout, check)
}

func (h *Health) add(name string, kind probeKind, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, &probe{
		name:    name,
		kind:    kind,
		timeout: timeout,
		check:   check,
		passing: true,
	})
}

// Start launches the scheduler goroutine. Probes run once immediately and
// then every interval until the context is cancelled or Stop is called.
// Register all probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go h.loop(ctx, interval, done)
}

func (h *Health) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.runAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runAll(ctx)
		}
	}
}

func (h *Health) runAll(ctx context.Context) {
	h.mu.Lock()
	probes := make([]*probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.check(probeCtx)
		cancel()

		h.mu.Lock()
		p.observe(err)
		h.mu.Unlock()
	}
}

// SetReady flips the manual readiness flag. Call with true once startup is
// done and with false at the start of graceful shutdown so load balancers
// stop routing new traffic here.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual flag is set and every readiness probe
// is currently passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(h.failing(probeReadiness)) == 0
}

// Stop cancels the scheduler and waits for it to exit. Safe to call more
// than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *Health) failing(kind probeKind) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	failures := make(map[string]string)
	for _, p := range h.probes {
		if p.kind != kind || p.passing {
			continue
		}
		if p.lastErr != nil {
			failures[p.name] = p.lastErr.Error()
		} else {
			failures[p.name] = "probe is failing"
		}
	}
	return failures
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness probes pass, 503 with
// the failing probe names and errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.failing(probeLiveness))
}

// ReadyEndpoint serves /readyz: 200 only when SetReady(true) has been called
// and every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	failures := h.failing(probeReadiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
