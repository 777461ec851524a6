package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound means the provider confirmed the record does
	// not exist. Only this error may trigger orphan recovery.
	ErrRecordNotFound = errors.New("provider: record not found")

	// ErrZoneNotFound means the provider does not know the zone ID.
	ErrZoneNotFound = errors.New("provider: zone not found")

	// ErrRateLimited is surfaced immediately and never retried here;
	// backing off is the caller's decision.
	ErrRateLimited = errors.New("provider: rate limited")
)

// StatusError is any other non-success HTTP response from the
// provider.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}
