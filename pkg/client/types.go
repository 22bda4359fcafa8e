package client

import "time"

// StartingRequest is the body of an entity starting callback. Leaving Tags
// empty makes the daemon read the entity's tags from its store.
type StartingRequest struct {
	Tags []string `json:"tags,omitempty"`
}

// StartingResult reports whether an overlay was launched.
type StartingResult struct {
	Launched bool           `json:"launched"`
	Overlay  *OverlayStatus `json:"overlay,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// OverlayStatus represents the overlay mapped to an entity.
type OverlayStatus struct {
	EntityID   string    `json:"entity_id"`
	Profile    string    `json:"profile"`
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

// RefreshSummary counts what a profile refresh changed.
type RefreshSummary struct {
	Total       int `json:"total"`
	TagsAdded   int `json:"tags_added"`
	TagsRemoved int `json:"tags_removed"`
	Ignored     int `json:"ignored"`
}

// RefreshResult is returned by the profile refresh endpoint.
type RefreshResult struct {
	Summary RefreshSummary `json:"summary"`
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
}

// Profile is a profile file known to the daemon.
type Profile struct {
	FileName string `json:"file_name"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Ignored  bool   `json:"ignored"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
