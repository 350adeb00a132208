package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord is returned when a snapshot line cannot be parsed
	// as a JSON object or lacks the identifying field for its entity type.
	ErrMalformedRecord = errors.New("malformed snapshot record")

	// ErrLocked is returned when another run holds the advisory lock for
	// the same output directory.
	ErrLocked = errors.New("delta computation already running")
)

// MalformedRecordError identifies the offending entity type and record.
//
// It matches ErrMalformedRecord:
//
//	var mre *snapshot.MalformedRecordError
//	if errors.As(err, &mre) {
//	    log.Printf("bad record in %s line %d", mre.EntityType, mre.Line)
//	}
type MalformedRecordError struct {
	EntityType string
	Path       string
	Line       int
	Reason     string
	Err        error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("%s: %s line %d: %s", e.EntityType, e.Path, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// IsMalformed returns true if err was caused by a malformed record.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}
