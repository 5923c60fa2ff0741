package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotClaimable is returned by JobStore.Claim when the job is missing,
	// already claimed, or terminal. Redelivered tasks treat it as a no-op.
	ErrNotClaimable = errors.New("ingest: job not claimable")

	// ErrCancelled aborts processing when the job's cancellation flag is set.
	ErrCancelled = errors.New("ingest: job cancelled")
)

// InputError marks a problem with the document itself: unsupported format,
// corrupt payload, no extractable text. Input errors fail the job immediately
// and are never retried.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("input error: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// IsInput reports whether err is an unrecoverable document problem.
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// DependencyError marks an upstream failure (index, storage, network) that
// survived its local retry budget. The job fails with the detail captured.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }
func (e *DependencyError) Unwrap() error { return e.Err }
