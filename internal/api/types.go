package api

// StatusResponse is returned for accepted webhooks and liveness.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ReadyResponse is returned by GET /health/ready.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Service          string `json:"service"`
	SecretConfigured bool   `json:"secret_configured"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}
