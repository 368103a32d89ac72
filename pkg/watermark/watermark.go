// Package watermark persists, per topic, the creation time of the newest
// message the client has recorded as delivered.
package watermark

import (
	"errors"
	"time"

	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
)

// ErrClosed is returned by reads and writes on a closed store.
var ErrClosed = errors.New("watermark store is closed")

// Store is safe for concurrent use. Watermarks never move backwards:
// Advance ignores timestamps that are not newer than the stored one.
type Store interface {
	// Get returns the stored watermark and whether one exists.
	Get(topicID string) (time.Time, bool, error)
	// Advance stores t if it is newer than the current watermark. It returns
	// the watermark before the call (zero if none) and whether t was stored.
	Advance(topicID string, t time.Time) (prev time.Time, advanced bool, err error)
	Close() error
}

// Key returns the storage key of a topic's watermark.
func Key(topicID string) string {
	return constants.WatermarkKeyPrefix + ":" + topicID
}
