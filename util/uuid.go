package util

import (
	"time"

	"github.com/google/uuid"
)

const uuidV7Attempts = 5

// NewUUID returns a time ordered uuid v7 string, or a random v4 when the
// v7 generator keeps failing.
func NewUUID() string {
	for i := range uuidV7Attempts {
		if id, err := uuid.NewV7(); err == nil {
			return id.String()
		}
		if i < uuidV7Attempts-1 {
			time.Sleep(200 * time.Nanosecond)
		}
	}
	return uuid.NewString()
}
