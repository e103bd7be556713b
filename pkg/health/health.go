// Package health provides readiness state tracking and HTTP health check
// handlers, with optional dependency probes folded into readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Probe checks one external dependency, such as the inference engine.
type Probe func(ctx context.Context) error

// probeTimeout bounds a single dependency probe during a readiness check.
const probeTimeout = 5 * time.Second

// Checker tracks the readiness state of the server.
// It is safe for concurrent use.
type Checker struct {
	state  atomic.Int32
	probes []namedProbe
}

type namedProbe struct {
	name  string
	probe Probe
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{}
}

// AddProbe registers a named dependency probe. Probes run on every
// readiness check; any failure makes the server not ready. Register all
// probes before serving; AddProbe is not safe to call concurrently with
// readiness checks.
func (c *Checker) AddProbe(name string, probe Probe) {
	c.probes = append(c.probes, namedProbe{name: name, probe: probe})
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when the
// server is ready and every registered probe passes, 503 otherwise.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: c.State()}
		healthy := c.IsReady()

		if len(c.probes) > 0 {
			resp.Probes = make(map[string]string, len(c.probes))
			for _, p := range c.probes {
				ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
				err := p.probe(ctx)
				cancel()
				if err != nil {
					resp.Probes[p.name] = err.Error()
					healthy = false
					continue
				}
				resp.Probes[p.name] = "ok"
			}
		}

		if healthy {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
