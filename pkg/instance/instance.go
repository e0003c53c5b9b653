package instance

import (
	"os"

	"github.com/google/uuid"
)

// GetID returns the process instance identifier. Without SPLITPAY_INSTANCE_ID
// it falls back to the hostname plus a random suffix so that replicas sharing
// a hostname stay distinct.
func GetID() string {
	if id := os.Getenv("SPLITPAY_INSTANCE_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return host + "-" + uuid.NewString()[:8]
}
