// Package reason defines the closed set of outcome codes shared by every
// action the gaia host executes, and the error type that carries them
// across package boundaries.
//
// Every action returns exactly one Code. Codes are wire-stable strings:
// clients branch on them, so they never change meaning once shipped.
package reason

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies the outcome of one host action.
type Code string

const (
	OK                      Code = "ok"
	RefRequired             Code = "ref_required"
	SnapshotNotFound        Code = "snapshot_not_found"
	StaleSnapshot           Code = "stale_snapshot"
	StaleRefRecovered       Code = "stale_ref_recovered"
	NotFound                Code = "not_found"
	NotActionable           Code = "not_actionable"
	NoStateChange           Code = "no_state_change"
	AmbiguousRefTarget      Code = "ambiguous_ref_target"
	TabScopeMismatch        Code = "tab_scope_mismatch"
	FrameScopeMismatch      Code = "frame_scope_mismatch"
	AmbiguousTargetID       Code = "ambiguous_target_id"
	ActionTimeout           Code = "action_timeout"
	LegacySelectorForbidden Code = "legacy_selector_forbidden"
	InvalidInput            Code = "invalid_input"
	HTTP4xx                 Code = "http_4xx"
	HTTP5xx                 Code = "http_5xx"
	Unknown                 Code = "unknown_error"
)

// valid is the closed set. Anything else is normalized to Unknown.
var valid = map[Code]struct{}{
	OK: {}, RefRequired: {}, SnapshotNotFound: {}, StaleSnapshot: {},
	StaleRefRecovered: {}, NotFound: {}, NotActionable: {}, NoStateChange: {},
	AmbiguousRefTarget: {}, TabScopeMismatch: {}, FrameScopeMismatch: {},
	AmbiguousTargetID: {}, ActionTimeout: {}, LegacySelectorForbidden: {},
	InvalidInput: {}, HTTP4xx: {}, HTTP5xx: {}, Unknown: {},
}

// Normalize returns c if it belongs to the closed set, Unknown otherwise.
func Normalize(c Code) Code {
	if _, ok := valid[c]; ok {
		return c
	}
	return Unknown
}

// callerFault marks codes caused by a malformed or impossible request.
// These map to HTTP 400 at the transport; everything else is an action
// outcome reported inside a 200 envelope.
var callerFault = map[Code]struct{}{
	RefRequired: {}, InvalidInput: {}, LegacySelectorForbidden: {},
}

// CallerFault reports whether c is a programmer error on the caller's side.
func CallerFault(c Code) bool {
	_, ok := callerFault[c]
	return ok
}

// HTTPStatus maps a code to the HTTP status the /execute endpoint uses when
// the request never reached a session (envelope and validation failures).
func HTTPStatus(c Code) int {
	switch {
	case c == OK:
		return http.StatusOK
	case CallerFault(c):
		return http.StatusBadRequest
	case c == Unknown || c == HTTP5xx:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// Error carries a Code together with a human-readable message. The message
// is for operators and VLM prompts; the code is the contract.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given code and message.
func New(c Code, msg string) *Error {
	return &Error{Code: c, Message: msg}
}

// Errorf builds an *Error with a formatted message. A trailing %w wraps the
// underlying cause as usual.
func Errorf(c Code, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Code: c, Message: err.Error(), Err: errors.Unwrap(err)}
}

// CodeOf extracts the Code from err, walking the wrap chain.
// Non-reason errors report Unknown; nil reports OK.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return Unknown
}

// Is allows errors.Is(err, reason.New(code, "")) style comparisons by code.
func (e *Error) Is(target error) bool {
	var re *Error
	if errors.As(target, &re) {
		return e.Code == re.Code
	}
	return false
}
