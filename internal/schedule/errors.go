package schedule

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-record ParseError.
type ErrorKind string

const (
	KindInvalidTime     ErrorKind = "INVALID_TIME"
	KindInvalidInterval ErrorKind = "INVALID_INTERVAL"
)

var (
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidInterval = errors.New("invalid interval")
)

// ParseError reports why one meeting record could not be laid out.
// Record is the index in the input slice, or -1 when the error was produced
// outside a pipeline run (e.g. a direct ParseClock call).
type ParseError struct {
	Kind     ErrorKind
	Record   int
	Identity string
	Field    string
	Value    string
}

func (e *ParseError) Error() string {
	where := ""
	if e.Record >= 0 {
		where = fmt.Sprintf("record %d", e.Record)
		if e.Identity != "" {
			where += " (" + e.Identity + ")"
		}
		where += ": "
	}
	switch e.Kind {
	case KindInvalidTime:
		return fmt.Sprintf("schedule: %s%s %q is not a HH:MM[:SS] clock time", where, e.Field, e.Value)
	case KindInvalidInterval:
		return fmt.Sprintf("schedule: %sinterval %s does not end after it starts", where, e.Value)
	default:
		return fmt.Sprintf("schedule: %s%s: %s", where, e.Field, e.Kind)
	}
}

func (e *ParseError) Unwrap() error {
	switch e.Kind {
	case KindInvalidTime:
		return ErrInvalidTime
	case KindInvalidInterval:
		return ErrInvalidInterval
	}
	return nil
}
