package solcore

import (
	"errors"
	"fmt"
)

// Status is the result code family returned throughout solcore, mirroring
// the status codes a pub/sub middleware binding reports back across its API.
type Status int

const (
	StatusOK Status = iota
	StatusNullArg
	StatusNoMem
	StatusPlatform
	StatusInvalidArg
	StatusQueueOpenObjects
	StatusTimeout
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNullArg:
		return "NULL_ARG"
	case StatusNoMem:
		return "NOMEM"
	case StatusPlatform:
		return "PLATFORM"
	case StatusInvalidArg:
		return "INVALID_ARG"
	case StatusQueueOpenObjects:
		return "QUEUE_OPEN_OBJECTS"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors, grouped by the status code they carry. Callers wrap
// these at the call site with fmt.Errorf("...: %w", ...) rather than
// constructing bare errors.New calls, so errors.Is keeps working across
// the accumulation paths in Destroy/Shutdown.
var (
	// Argument validation errors (StatusNullArg / StatusInvalidArg)
	ErrNullArg          = errors.New("argument must not be nil")
	ErrInvalidArg       = errors.New("argument is invalid")
	ErrInvalidTransport = errors.New("invalid transport identifier")
	ErrInvalidInterval  = errors.New("timer interval must be positive")

	// Resource exhaustion errors (StatusNoMem)
	ErrNoMem = errors.New("unable to allocate resource")

	// Middleware/platform errors (StatusPlatform)
	ErrPlatform = errors.New("middleware platform error")

	// Lifecycle ordering errors (StatusQueueOpenObjects)
	ErrQueueOpenObjects = errors.New("queue has open objects")

	// Waiting errors (StatusTimeout)
	ErrTimeout = errors.New("operation timed out")

	// Lookup errors (StatusNotFound)
	ErrNotFound = errors.New("entry not found")

	// Lifecycle state errors
	ErrAlreadyDestroyed    = errors.New("object already destroyed")
	ErrAlreadyShutdown     = errors.New("object already shut down")
	ErrConnectionDestroyed = errors.New("connection is destroyed")
	ErrSessionDestroyed    = errors.New("session is destroyed")
	ErrSessionNotOwned     = errors.New("session does not belong to this connection")

	// Event emission errors
	ErrNoSubjectForEventEmission = errors.New("no subject available for event emission")
)

// StatusOf extracts the Status embedded by WrapStatus, or StatusPlatform
// if err was not produced by this package.
func StatusOf(err error) Status {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return StatusPlatform
}

type statusError struct {
	status Status
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// WrapStatus attaches a Status to err so StatusOf can recover it later,
// while leaving errors.Is/errors.As against err itself intact.
func WrapStatus(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &statusError{status: status, err: err}
}

// wrap is a small helper for call sites that want "<op>: %w" formatting
// without repeating fmt.Errorf everywhere.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
