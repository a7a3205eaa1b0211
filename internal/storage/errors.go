package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrJobNotClaimable   = errors.New("job not claimable")
	ErrRiderBusy         = errors.New("rider already holds an active job")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// TransitionError reports why a guarded lifecycle transition was rejected.
// It always unwraps to ErrInvalidTransition.
type TransitionError struct {
	Reason string // "wrong_rider" or "wrong_status"
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s", e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func wrongRider() error  { return &TransitionError{Reason: "wrong_rider"} }
func wrongStatus() error { return &TransitionError{Reason: "wrong_status"} }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
