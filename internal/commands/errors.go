package commands

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the outcome of a command.
type ErrorKind int

const (
	// KindNone means the command succeeded.
	KindNone ErrorKind = iota
	// KindMessageNotSent means the reply could not be delivered.
	KindMessageNotSent
	// KindInvalidData means the command found state it could not use.
	KindInvalidData
	// KindNoPermissions means the author may not run the command.
	KindNoPermissions
	// KindTreatedException means the handler already told the user.
	KindTreatedException
	// KindTooEarly means the process cannot answer yet.
	KindTooEarly
	// KindCommandNotFound means no handler is registered under the name.
	KindCommandNotFound
	// KindUnknown is any other failure, including a handler panic.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindMessageNotSent:
		return "message_not_sent"
	case KindInvalidData:
		return "invalid_data"
	case KindNoPermissions:
		return "no_permissions"
	case KindTreatedException:
		return "treated_exception"
	case KindTooEarly:
		return "too_early"
	case KindCommandNotFound:
		return "command_not_found"
	default:
		return "unknown"
	}
}

// Error is the error type returned by command handlers.
type Error struct {
	Kind  ErrorKind
	Cause error
}

// Errorf returns an *Error of the given kind with a formatted cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf classifies err. nil is KindNone and errors that are not an
// *Error are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	return KindUnknown
}
