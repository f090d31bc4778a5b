package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "waiting" while a challenge is open
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// RunStatusResponse is the response for GET /api/v1/run.
type RunStatusResponse struct {
	// RunID identifies the run across logs, sinks and webhooks.
	RunID string `json:"run_id"`

	// Query is the effective search query.
	Query string `json:"query"`

	// State is the orchestrator state (e.g. "extracting", "done").
	State string `json:"state"`

	// Stats is the latest persisted-progress snapshot.
	Stats RunStats `json:"stats"`

	// ChallengeOpen is true while the run is blocked on a human-verification page.
	ChallengeOpen bool `json:"challenge_open"`

	// StartedAt is the unix timestamp at which the run started.
	StartedAt int64 `json:"started_at"`

	// Error is populated only when the run failed.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is returned by the status API when a request is rejected.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}
