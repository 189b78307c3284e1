package switcher

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("switcher: invalid collection name")
	// ErrStoreUnavailable wraps bootstrap failures. It is fatal: callers
	// stop initialization instead of retrying.
	ErrStoreUnavailable = errors.New("switcher: bookmark store unavailable")
	// ErrInconsistentState marks a registry that disagrees with the store.
	// It is repaired by reload and reconciliation and only surfaces from
	// Select when the previous collection's folder has vanished.
	ErrInconsistentState = errors.New("switcher: inconsistent collection state")
	// ErrUnknownCollection is returned when selecting a name with no folder.
	ErrUnknownCollection = errors.New("switcher: unknown collection")
	// ErrNotBootstrapped is returned by operations that need the collections root.
	ErrNotBootstrapped = errors.New("switcher: not bootstrapped")
)

// User-facing validation messages.
const (
	ReasonEmpty = "Please provide a name."
	ReasonTaken = "This name is taken."
	ReasonColon = "The name can't contain a colon."
)

// ValidationError reports why a collection name was rejected. Error returns
// the message shown to the user.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func reservedReason(token string) string {
	if token == ":" {
		return ReasonColon
	}
	return fmt.Sprintf("The name can't contain %q.", token)
}

func isValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
