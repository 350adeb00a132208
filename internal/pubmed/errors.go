package pubmed

import (
	"errors"
	"fmt"
)

var (
	// ErrRemote indicates the web application or NLM answered with an
	// error rather than failing to answer at all.
	ErrRemote = errors.New("remote service error")

	// ErrBadDate indicates a date argument that could not be understood.
	ErrBadDate = errors.New("unrecognized date")
)

// StatusError is a non-200 response from a remote endpoint.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP code %d", e.URL, e.Code)
}

// Is reports whether target is ErrRemote.
func (e *StatusError) Is(target error) bool {
	return target == ErrRemote
}
