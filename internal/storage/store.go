// Package storage persists raw uploaded payloads between the upload request
// and the background ingestion run that consumes them.
package storage

import "errors"

var (
	// ErrNotFound is returned when no payload exists under the given key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// ObjectStore holds raw document bytes keyed by owner and document id. The
// ingestion worker reads from here; the upload handler writes.
type ObjectStore interface {
	SaveRaw(ownerID, documentID string, data []byte) error
	FetchRaw(ownerID, documentID string) ([]byte, error)
	DeleteRaw(ownerID, documentID string) error
}
