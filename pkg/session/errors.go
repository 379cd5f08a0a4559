package session

import "errors"

// ErrBusy is returned by Submit while another turn is in flight.
var ErrBusy = errors.New("a turn is already in flight")

// ValidationError rejects input locally; the operation is a no-op.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}
