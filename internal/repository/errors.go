// Package repository persists QR code descriptors.  Three interchangeable
// stores are provided (SQL, Redis and in-memory); all of them report
// failures through the sentinel errors below so the service layer can tell
// a missing code apart from an unreachable store.
package repository

import (
	"errors"
	"fmt"
)

// ErrCodeNotFound is returned when no descriptor exists for the requested
// code id or token.  Handlers translate it into a 404 or a NOT_FOUND verdict.
var ErrCodeNotFound = errors.New("qr code not found")

// ErrStoreUnavailable wraps driver, network and timeout failures.  Callers
// should treat it as retryable, unlike ErrCodeNotFound.
var ErrStoreUnavailable = errors.New("metadata store unavailable")

// ErrDuplicateToken signals a check-in token collision on insert.
var ErrDuplicateToken = errors.New("duplicate check-in token")

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
