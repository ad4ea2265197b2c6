package transport

import (
	"errors"
	"fmt"
)

// ErrTransport matches every *Error via errors.Is.
var ErrTransport = errors.New("transport error")

// Error is returned for any network failure or non-2xx response.
type Error struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// StatusCode extracts the HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}
