// Package blunder provides error-handling wrappers
//
// These wrappers allow callers to attach an errno value (and, for transport
// failures, an "unrecoverable" marker) to regular Go errors while still
// conforming to the Go error interface.
//
// This package is implemented on top of the ansel1/merry package:
//   https://github.com/ansel1/merry
//
// merry comes with built-in support for adding information to errors:
// stacktraces, overriding the error message, and arbitrary key/values.
package blunder

import (
	"fmt"

	"github.com/ansel1/merry"
	"golang.org/x/sys/unix"
)

// FsError is an error category constant whose value is a linux/POSIX errno.
//
// Using errno-valued constants keeps error values directly reportable through
// the read request's error field the way the I/O protocol expects them.
type FsError int

const (
	// Errors that map to linux/POSIX errnos as defined in errno.h
	//
	NotFoundError     FsError = FsError(int(unix.ENOENT))    // No such file or directory
	IOError           FsError = FsError(int(unix.EIO))       // I/O error
	BadFileError      FsError = FsError(int(unix.EBADF))     // Bad file number
	TryAgainError     FsError = FsError(int(unix.EAGAIN))    // Try again
	InvalidArgError   FsError = FsError(int(unix.EINVAL))    // Invalid argument
	BrokenPipeError   FsError = FsError(int(unix.EPIPE))     // Broken pipe
	NoDeviceError     FsError = FsError(int(unix.ENODEV))    // No such device
	OutOfRangeError   FsError = FsError(int(unix.ERANGE))    // Math result not representable
	StalePlanError    FsError = FsError(int(unix.ESTALE))    // Stale file handle (read plan no longer matches the store)
	TimedOutError     FsError = FsError(int(unix.ETIMEDOUT)) // Connection timed out
	NotSupportedError FsError = FsError(int(unix.ENOTSUP))   // Operation not supported
)

// Errors that map to constants already defined above
const (
	BadHTTPGetError FsError = IOError
	DecodeError     FsError = IOError
)

// SuccessError is the success FsError (sounds odd, no?)
const SuccessError FsError = 0

// Default errno values for success and failure
const successErrno = 0
const failureErrno = -1

const errnoKey = "errno"
const fatalKey = "fatal"

// Value returns the int value for the specified FsError constant.
func (err FsError) Value() int {
	return int(err)
}

// NewError creates a new merry/blunder.FsError-annotated error using the given
// format string and arguments.
func NewError(errValue FsError, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue(errnoKey, int(errValue))
}

// AddError is used to add FS error detail to a Go error.
func AddError(e error, errValue FsError) error {
	if e == nil {
		// The caller obviously intends to make this a non-nil error,
		// so oblige them even without context in the error string.
		return merry.New("regular error").WithValue(errnoKey, int(errValue))
	}

	return merry.WrapSkipping(e, 1).WithValue(errnoKey, int(errValue))
}

// MarkFatal tags an error as unrecoverable for the connection it occurred on.
//
// A fatal error indicates request/response framing between this client and its
// peer can no longer be trusted; the caller is expected to tear down the
// affected connection (and any session state built on it) rather than reuse it.
func MarkFatal(e error) error {
	if e == nil {
		return merry.New("fatal error").WithValue(fatalKey, true)
	}

	return merry.WrapSkipping(e, 1).WithValue(fatalKey, true)
}

// IsFatal reports whether the error carries the unrecoverable marker set by
// MarkFatal().
func IsFatal(e error) bool {
	if e == nil {
		return false
	}

	tmp := merry.Value(e, fatalKey)
	if tmp == nil {
		return false
	}

	return tmp.(bool)
}

// Errno extracts errno from the error, if it was previously wrapped.
// Otherwise a default value is returned.
func Errno(e error) int {
	if e == nil {
		// nil error = success
		return successErrno
	}

	// If the "errno" key/value was not present, merry.Value returns nil.
	var errno = failureErrno
	tmp := merry.Value(e, errnoKey)
	if tmp != nil {
		errno = tmp.(int)
	}

	return errno
}

// ErrorString returns the error string annotated with the error value, if set.
func ErrorString(e error) string {
	if e == nil {
		return ""
	}

	errPlusVal := e.Error()

	tmp := merry.Value(e, errnoKey)
	if tmp != nil {
		errPlusVal = fmt.Sprintf("%s. Error Value: %v\n", errPlusVal, tmp.(int))
	}

	return errPlusVal
}

// Is checks whether an error matches a particular FsError.
//
// NOTE: Because the value of the underlying errno is used to do this check,
//       this API cannot distinguish between FsErrors that share an errno
//       value (e.g. IOError vs DecodeError).
func Is(e error, theError FsError) bool {
	return Errno(e) == theError.Value()
}

// IsNot checks whether an error is NOT a particular FsError.
func IsNot(e error, theError FsError) bool {
	return Errno(e) != theError.Value()
}

// IsSuccess checks whether an error is the success FsError.
func IsSuccess(e error) bool {
	return Errno(e) == successErrno
}

// IsNotSuccess checks whether an error is NOT the success FsError.
func IsNotSuccess(e error) bool {
	return Errno(e) != successErrno
}

// Location returns the file and line number of the code that generated the
// error. Returns zero values if e has no stacktrace.
func Location(e error) (file string, line int) {
	file, line = merry.Location(e)
	return
}

// Details wraps merry.Details, which returns all error details including
// stacktrace in a string.
func Details(e error) string {
	return merry.Details(e)
}
