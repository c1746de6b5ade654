package instance

import (
	"os"

	"github.com/angelmondragon/freshora-backend/pkg/env"
)

// GetID identifies this process in logs and cron lock ownership. WORKER_ID
// wins, then the hostname, then a fixed fallback.
func GetID() string {
	fallback := "worker-0"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.Get("WORKER_ID", fallback)
}
