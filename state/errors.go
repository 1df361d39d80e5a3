package state

import (
	"errors"
	"fmt"

	"github.com/encodeous/station/timetable"
)

var (
	ErrMalformed        = errors.New("malformed message")
	ErrCorrelationMiss  = errors.New("correlation miss")
	ErrTransport        = errors.New("transport failure")
	ErrDuplicateForward = errors.New("duplicate outstanding forward")
	ErrWaiterNotFound   = errors.New("client waiter not found")
	ErrHopNotOpen       = errors.New("hop is not open")
	ErrNoTimetable      = timetable.ErrNoTimetable
)

type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindMalformed
	KindCorrelationMiss
	KindTimetableMiss
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "MalformedMessage"
	case KindCorrelationMiss:
		return "CorrelationMiss"
	case KindTimetableMiss:
		return "TimetableMiss"
	case KindTransport:
		return "TransportFailure"
	default:
		return "Internal"
	}
}

// StationError attaches the failing operation and query to an error.
type StationError struct {
	Kind  ErrorKind
	Op    string
	Query QueryID
	Err   error
}

func (e *StationError) Error() string {
	if e.Query == (QueryID{}) {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Query, e.Kind, e.Err)
}

func (e *StationError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must stop the station.
func (e *StationError) Fatal() bool {
	return e.Kind == KindTransport
}

func NewError(kind ErrorKind, op string, id QueryID, err error) error {
	return &StationError{Kind: kind, Op: op, Query: id, Err: err}
}

func Malformed(op string, format string, args ...any) error {
	return &StationError{Kind: KindMalformed, Op: op, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

// KindOf classifies an error, defaulting to KindInternal.
func KindOf(err error) ErrorKind {
	var se *StationError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrCorrelationMiss), errors.Is(err, ErrWaiterNotFound), errors.Is(err, ErrHopNotOpen):
		return KindCorrelationMiss
	case errors.Is(err, ErrNoTimetable):
		return KindTimetableMiss
	case errors.Is(err, ErrTransport):
		return KindTransport
	}
	return KindInternal
}

// IsFatal reports whether err should terminate the event loop.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindTransport
}
