// Package instance names the running process in logs.
package instance

import "os"

const fallbackID = "local"

// GetID prefers STOCKFLOW_INSTANCE_ID, then the host name.
func GetID() string {
	if id := os.Getenv("STOCKFLOW_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
