package instance

import (
	"os"

	"github.com/postpilot/postpilot-backend/pkg/env"
)

// GetID returns the worker instance identifier used as the claim owner.
// Falls back to the hostname, then to a fixed default.
func GetID() string {
	if id := env.Get("POSTPILOT_WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "scheduler-0"
}
