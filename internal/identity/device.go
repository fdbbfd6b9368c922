package identity

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// NewDeviceID builds an opaque device identifier for this process session:
// a host fingerprint plus a millisecond timestamp and a random token.  It is
// generated once per session and purely advisory: the hub uses it to
// disambiguate multiple devices of one user, not as a security boundary.
func NewDeviceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	return fmt.Sprintf("go-%s-%d-%s", hyphenate(hostname), time.Now().UnixMilli(), uuid.NewString()[:8])
}
