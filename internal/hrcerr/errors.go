// Package hrcerr defines the error taxonomy the engine surfaces to
// callers. These are sentinel values wrapped with context via
// fmt.Errorf's %w — there is no custom Error type hierarchy here.
package hrcerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel kinds. Check with errors.Is.
var (
	// ErrInvalidQuery covers empty text, out-of-range limit, malformed weights.
	ErrInvalidQuery = errors.New("hrce: invalid query")
	// ErrDimensionMismatch signals the embedder and vector store disagree on dimension.
	ErrDimensionMismatch = errors.New("hrce: embedding dimension mismatch")
	// ErrSearchUnavailable means both search drivers failed or returned nothing
	// under failure — distinct from a successful empty result.
	ErrSearchUnavailable = errors.New("hrce: search unavailable")
	// ErrCancelled is returned when the caller's context is done.
	ErrCancelled = errors.New("hrce: cancelled")
	// ErrInternal covers invariant violations (e.g. unnormalized weights
	// escaping the router). Carries a correlation id via Internal().
	ErrInternal = errors.New("hrce: internal error")
)

// CacheTransient wraps an L2 cache error that must be logged, not
// propagated. Callers should never see this type directly — it's swallowed
// at the cache boundary — but it's named so the swallow site can log a
// stable message.
type CacheTransient struct {
	Op  string
	Err error
}

func (e *CacheTransient) Error() string {
	return fmt.Sprintf("hrce: cache transient error during %s: %v", e.Op, e.Err)
}

func (e *CacheTransient) Unwrap() error { return e.Err }

// NewCacheTransient builds a CacheTransient for op, wrapping err.
func NewCacheTransient(op string, err error) error {
	return &CacheTransient{Op: op, Err: err}
}

// Internal wraps ErrInternal with a correlation id and stage context so a
// caller can report a 500-class error without leaking implementation
// details.
func Internal(stage string, cause error) error {
	id := uuid.NewString()
	if cause != nil {
		return fmt.Errorf("%w [stage=%s correlation_id=%s]: %v", ErrInternal, stage, id, cause)
	}
	return fmt.Errorf("%w [stage=%s correlation_id=%s]", ErrInternal, stage, id)
}

// Invalid wraps ErrInvalidQuery with a reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, reason)
}
