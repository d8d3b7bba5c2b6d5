package dew

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is the symbolic error taxonomy exported to scripts.
type Code string

const (
	CodeOK           Code = "ok"
	CodeInvalid      Code = "invalid"
	CodeRange        Code = "range"
	CodeInput        Code = "input"
	CodeSysop        Code = "sysop"
	CodeBadFD        Code = "badfd"
	CodeBadName      Code = "badname"
	CodeNotFound     Code = "notfound"
	CodeNameTooLong  Code = "nametoolong"
	CodeCanceled     Code = "canceled"
	CodeNotSupported Code = "notsupported"
	CodeExists       Code = "exists"
	CodeEnd          Code = "end"
	CodeAccess       Code = "access"
	CodeNoMem        Code = "nomem"
	CodeMFault       Code = "mfault"
	CodeOverflow     Code = "overflow"
	CodeReadOnly     Code = "readonly"
	CodeIO           Code = "io"
	CodeNotDir       Code = "notdir"
	CodeIsDir        Code = "isdir"
	CodeError        Code = "error"
)

// Error is the structured error type returned by runtime operations.
//
// It carries enough context (operation, symbolic code, originating errno)
// to let callers match on Code via errors.Is without string-matching
// messages, while still rendering a useful Error() string.
type Error struct {
	Op    string
	Code  Code
	Errno syscall.Errno
	Cause error
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("dew: %s: %s (errno=%d)", e.Op, e.Code, e.Errno)
	}
	if e.Cause != nil {
		return fmt.Sprintf("dew: %s: %s: %v", e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("dew: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	if e.Errno != 0 {
		return e.Errno
	}
	return e.Cause
}

// Is reports whether target shares this error's symbolic Code, so callers
// can write errors.Is(err, dew.NewError("", dew.CodeNotFound, nil)) or keep
// a sentinel *Error around to compare against.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// NewError constructs a structured Error.
func NewError(op string, code Code, cause error) *Error {
	return &Error{Op: op, Code: code, Cause: cause}
}

// WrapErrno maps a syscall errno to a symbolic Code and wraps it.
func WrapErrno(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno}
}

// mapErrnoToCode maps native errno values to the symbolic taxonomy;
// unknown codes map to CodeError.
func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL:
		return CodeInvalid
	case syscall.ERANGE:
		return CodeRange
	case syscall.EBADF:
		return CodeBadFD
	case syscall.ENAMETOOLONG:
		return CodeNameTooLong
	case syscall.ENOENT:
		return CodeNotFound
	case syscall.EINTR, syscall.ECANCELED:
		return CodeCanceled
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return CodeNotSupported
	case syscall.EEXIST:
		return CodeExists
	case syscall.EACCES, syscall.EPERM:
		return CodeAccess
	case syscall.ENOMEM:
		return CodeNoMem
	case syscall.EFAULT:
		return CodeMFault
	case syscall.EOVERFLOW:
		return CodeOverflow
	case syscall.EROFS:
		return CodeReadOnly
	case syscall.EIO:
		return CodeIO
	case syscall.ENOTDIR:
		return CodeNotDir
	case syscall.EISDIR:
		return CodeIsDir
	default:
		return CodeError
	}
}

// IsCode reports whether err (or any error in its chain) carries code.
func IsCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
