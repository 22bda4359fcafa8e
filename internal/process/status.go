package process

import "time"

// Status is a point-in-time view of a managed process.
type Status struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	PID        int       `json:"pid"`
	Path       string    `json:"path"`
	Args       []string  `json:"args"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at,omitempty"`
	ExitErr    string    `json:"exit_error,omitempty"`
	MemoryRSS  uint64    `json:"memory_rss,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}
