package health

import (
	"context"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// ServiceHealth is the result of one Check.
type ServiceHealth struct {
	Healthy     bool      `json:"healthy"`
	LatencyMs   int64     `json:"latency"`
	LastChecked time.Time `json:"lastChecked"`
	Error       string    `json:"error,omitempty"`
}

// SystemStatus is the body of GET /api/health/status.
type SystemStatus struct {
	Status    string                   `json:"status"` // healthy or degraded
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
}

// CheckStatus runs checks in turn; any failure degrades the status.
func CheckStatus(ctx context.Context, checks map[string]Check) *SystemStatus {
	st := &SystemStatus{Status: "healthy", Timestamp: time.Now().UTC(), Services: make(map[string]ServiceHealth, len(checks))}
	for name, check := range checks {
		start := time.Now()
		sh := ServiceHealth{Healthy: true}
		if err := check(ctx); err != nil {
			sh.Healthy = false
			sh.Error = name + " health check failed"
			st.Status = "degraded"
		}
		sh.LatencyMs = time.Since(start).Milliseconds()
		sh.LastChecked = time.Now().UTC()
		st.Services[name] = sh
	}
	return st
}
