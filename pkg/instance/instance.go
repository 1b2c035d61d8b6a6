// Package instance names the running process for logs.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// GetID returns the process identifier: COURSEFORGE_INSTANCE_ID, then the
// platform dyno name, then the hostname.
func GetID() string {
	for _, key := range []string{"COURSEFORGE_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
