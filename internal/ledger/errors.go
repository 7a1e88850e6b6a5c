package ledger

import (
	"errors"
	"fmt"
)

// Code is a stable numeric ledger error code.
type Code uint32

// Ledger error codes. Values are persisted in the journal and published in
// receipts, so they must never be renumbered.
const (
	CodeOK               Code = 0
	CodeNotAuthorized    Code = 100
	CodeAlreadyExists    Code = 101
	CodeDeviceNotFound   Code = 102
	CodeGroupNotFound    Code = 103
	CodeScheduleNotFound Code = 104
	CodeInvalidRange     Code = 105
	CodeInvalidName      Code = 106
	CodeAlreadyMember    Code = 107
	CodeNotMember        Code = 108
	CodeInvalidTarget    Code = 109
	CodeInvalidTrigger   Code = 110
	CodeInvalidAction    Code = 111
	CodeAlreadyExecuted  Code = 112
	CodeNotDue           Code = 113
	CodeUnknownOperation Code = 114
	CodeInvalidID        Code = 115
)

var codeNames = map[Code]string{
	CodeOK:               "OK",
	CodeNotAuthorized:    "NOT_AUTHORIZED",
	CodeAlreadyExists:    "ALREADY_EXISTS",
	CodeDeviceNotFound:   "DEVICE_NOT_FOUND",
	CodeGroupNotFound:    "GROUP_NOT_FOUND",
	CodeScheduleNotFound: "SCHEDULE_NOT_FOUND",
	CodeInvalidRange:     "INVALID_RANGE",
	CodeInvalidName:      "INVALID_NAME",
	CodeAlreadyMember:    "ALREADY_MEMBER",
	CodeNotMember:        "NOT_MEMBER",
	CodeInvalidTarget:    "INVALID_TARGET",
	CodeInvalidTrigger:   "INVALID_TRIGGER",
	CodeInvalidAction:    "INVALID_ACTION",
	CodeAlreadyExecuted:  "ALREADY_EXECUTED",
	CodeNotDue:           "NOT_DUE",
	CodeUnknownOperation: "UNKNOWN_OPERATION",
	CodeInvalidID:        "INVALID_ID",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", uint32(c))
}

// Kind returns the error kind for the code. The device, group and schedule
// not-found codes share the NOT_FOUND kind; every other code is its own kind.
func (c Code) Kind() string {
	switch c {
	case CodeDeviceNotFound, CodeGroupNotFound, CodeScheduleNotFound:
		return "NOT_FOUND"
	default:
		return c.String()
	}
}

// Known reports whether c belongs to the closed code set.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// Error is a rejected ledger operation. It is an expected outcome returned to
// the caller, never a fault of the executor.
type Error struct {
	Code   Code
	Op     string // operation that produced the error, empty for sentinels
	Detail string // human-readable context, not part of the contract
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "ledger: " + e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + e.Code.String()
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Is matches errors by code. ErrNotFound additionally matches every
// not-found code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t == ErrNotFound {
		return e.Code.Kind() == "NOT_FOUND"
	}
	return e.Code == t.Code
}

// Sentinel ledger errors for use with errors.Is.
var (
	ErrNotAuthorized    = &Error{Code: CodeNotAuthorized}
	ErrAlreadyExists    = &Error{Code: CodeAlreadyExists}
	ErrDeviceNotFound   = &Error{Code: CodeDeviceNotFound}
	ErrGroupNotFound    = &Error{Code: CodeGroupNotFound}
	ErrScheduleNotFound = &Error{Code: CodeScheduleNotFound}
	ErrInvalidRange     = &Error{Code: CodeInvalidRange}
	ErrInvalidName      = &Error{Code: CodeInvalidName}
	ErrAlreadyMember    = &Error{Code: CodeAlreadyMember}
	ErrNotMember        = &Error{Code: CodeNotMember}
	ErrInvalidTarget    = &Error{Code: CodeInvalidTarget}
	ErrInvalidTrigger   = &Error{Code: CodeInvalidTrigger}
	ErrInvalidAction    = &Error{Code: CodeInvalidAction}
	ErrAlreadyExecuted  = &Error{Code: CodeAlreadyExecuted}
	ErrNotDue           = &Error{Code: CodeNotDue}
	ErrUnknownOperation = &Error{Code: CodeUnknownOperation}
	ErrInvalidID        = &Error{Code: CodeInvalidID}

	// ErrNotFound matches any of the not-found codes.
	ErrNotFound = &Error{Code: CodeDeviceNotFound}
)

// Reject builds an *Error for op with the given code and optional detail.
func Reject(op string, code Code, detail string) *Error {
	return &Error{Code: code, Op: op, Detail: detail}
}

// CodeOf extracts the ledger code from err. It returns CodeOK for nil and
// false when err is not a ledger error.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return CodeOK, true
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return CodeOK, false
}
