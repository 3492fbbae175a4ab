package core

import "errors"

var (
	// ErrIndexUnavailable marks embedding or vector-search failures. It is
	// never returned for a legitimate empty result.
	ErrIndexUnavailable = errors.New("knowledge index unavailable")

	ErrEmptySession = errors.New("session id is required")
)

// statusCoder is implemented by client errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// httpStatus returns the HTTP status carried by err, if any.
func httpStatus(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}
