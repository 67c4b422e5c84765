package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Phase is where the service is in its lifecycle. Only PhaseServing is ready.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseReplaying
	PhaseServing
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReplaying:
		return "replaying"
	case PhaseServing:
		return "serving"
	case PhaseDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// HealthChecker backs /healthz and /readyz. Readiness reports the lifecycle
// phase and the last sequence recovered from the command log.
type HealthChecker struct {
	phase     atomic.Int32
	recovered atomic.Int64
	startTime time.Time
}

func NewHealthChecker() *HealthChecker {
	h := &HealthChecker{startTime: time.Now()}
	h.recovered.Store(-1)
	return h
}

func (h *HealthChecker) SetPhase(p Phase) {
	h.phase.Store(int32(p))
}

func (h *HealthChecker) Phase() Phase {
	return Phase(h.phase.Load())
}

// SetRecoveredSequence records the log position replay reached.
func (h *HealthChecker) SetRecoveredSequence(seq int64) {
	h.recovered.Store(seq)
}

// SetReady moves to serving, or from serving to draining.
func (h *HealthChecker) SetReady(ready bool) {
	if ready {
		h.SetPhase(PhaseServing)
		return
	}
	h.phase.CompareAndSwap(int32(PhaseServing), int32(PhaseDraining))
}

func (h *HealthChecker) IsReady() bool {
	return h.Phase() == PhaseServing
}

// LivenessHandler answers 200 while the process runs, whatever the phase.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status": "alive",
		"phase":  h.Phase().String(),
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// ReadinessHandler answers 200 only while serving, 503 during startup,
// replay and drain.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"phase":              h.Phase().String(),
		"recovered_sequence": h.recovered.Load(),
	}
	if h.IsReady() {
		body["status"] = "ready"
		writeHealth(w, http.StatusOK, body)
		return
	}
	body["status"] = "not_ready"
	writeHealth(w, http.StatusServiceUnavailable, body)
}

func writeHealth(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
