package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxIDAttempts = 8

// newID returns "post_<unix seconds>_<8 hex>". taken reports ids already in use.
func newID(now time.Time, taken func(string) bool) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		u := uuid.New()
		id := fmt.Sprintf("post_%d_%x", now.Unix(), u[:4])
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique post id after %d attempts", maxIDAttempts)
}
