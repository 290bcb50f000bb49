package glue

import (
	"errors"
	"fmt"
)

// Code is the status returned by every runtime call. Zero is success.
type Code int

const (
	Success Code = iota
	InvalidArgument
	DeviceNotFound
	OutOfResources
	BuildFailure
	InvalidKernel
	TransferFailure
	ExecutionFailure
	Released
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case InvalidArgument:
		return "InvalidArgument"
	case DeviceNotFound:
		return "DeviceNotFound"
	case OutOfResources:
		return "OutOfResources"
	case BuildFailure:
		return "BuildFailure"
	case InvalidKernel:
		return "InvalidKernel"
	case TransferFailure:
		return "TransferFailure"
	case ExecutionFailure:
		return "ExecutionFailure"
	case Released:
		return "Released"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the error type returned by the runtime
type Error struct {
	Code    Code
	Op      string // Operation that failed
	Message string
	Err     error // Underlying error if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("glue %s error in %s: %s (caused by: %v)",
			e.Code, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("glue %s error in %s: %s", e.Code, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of operation and message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidArgument  = &Error{Code: InvalidArgument, Op: "*", Message: "invalid argument"}
	ErrDeviceNotFound   = &Error{Code: DeviceNotFound, Op: "*", Message: "device not found"}
	ErrOutOfResources   = &Error{Code: OutOfResources, Op: "*", Message: "out of resources"}
	ErrBuildFailure     = &Error{Code: BuildFailure, Op: "*", Message: "build failure"}
	ErrInvalidKernel    = &Error{Code: InvalidKernel, Op: "*", Message: "invalid kernel"}
	ErrTransferFailure  = &Error{Code: TransferFailure, Op: "*", Message: "transfer failure"}
	ErrExecutionFailure = &Error{Code: ExecutionFailure, Op: "*", Message: "execution failure"}
	ErrReleased         = &Error{Code: Released, Op: "*", Message: "handle has been released"}
)

func newError(code Code, op string, format string, args ...interface{}) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, op string, err error, format string, args ...interface{}) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the status code of err. Errors that did not come from the
// runtime report ExecutionFailure.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ExecutionFailure
}
