// Package slot provides the persistent string-key/string-value slot that
// backs the local cache and the pending-sync queue.
package slot

import "errors"

var (
	// ErrQuotaExceeded marks a temporary write failure: the payload did
	// not fit. Callers may retry once with a reduced payload.
	ErrQuotaExceeded = errors.New("slot quota exceeded")

	// ErrUnavailable marks a permanent failure: the slot cannot accept
	// writes at all. Callers must not retry.
	ErrUnavailable = errors.New("slot unavailable")
)

// Slot is a single string-keyed, string-valued store. Reads of missing
// keys report ok=false with no error; write failures are classified via
// ErrQuotaExceeded and ErrUnavailable.
type Slot interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}
