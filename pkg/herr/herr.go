// Package herr implements the engine's error taxonomy: a small set of
// kinds, each carrying a human message, optional details, a recoverable
// flag, and an optional suggestion for the caller.
package herr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the engine's error categories.
type Kind string

const (
	Audio          Kind = "audio"
	Model          Kind = "model"
	Transcription  Kind = "transcription"
	Network        Kind = "network"
	Validation     Kind = "validation"
	State          Kind = "state"
	Filesystem     Kind = "filesystem"
	Permission     Kind = "permission"
)

// Error is the engine-wide error type.
type Error struct {
	Kind        Kind
	Message     string
	Details     string
	Recoverable bool
	Suggestion  string
	Cause       error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a non-recoverable Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that carries an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	c := *e
	c.Suggestion = s
	return &c
}

// AsRecoverable returns a copy of e with Recoverable set to true.
func (e *Error) AsRecoverable() *Error {
	c := *e
	c.Recoverable = true
	return &c
}

// Is supports errors.Is comparisons by Kind when the target is an *Error
// with an empty Message (a sentinel-style kind check).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		if t.Message == "" {
			return e.Kind == t.Kind
		}
		return e.Kind == t.Kind && e.Message == t.Message
	}
	return false
}

// KindOf extracts the Kind from err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Sentinel kinds, used with errors.Is(err, herr.KindAudio) etc.
var (
	KindAudio         = &Error{Kind: Audio}
	KindModel         = &Error{Kind: Model}
	KindTranscription = &Error{Kind: Transcription}
	KindNetwork       = &Error{Kind: Network}
	KindValidation    = &Error{Kind: Validation}
	KindState         = &Error{Kind: State}
	KindFilesystem    = &Error{Kind: Filesystem}
	KindPermission    = &Error{Kind: Permission}
)

// Named sentinels for the specific failure modes spec.md calls out by
// name, mirroring the teacher's flat sentinel-error list but expressed
// as typed Errors so callers can also branch on Kind.
var (
	ErrDeviceOpen         = &Error{Kind: Audio, Message: "device open failed"}
	ErrModelNotLoaded     = &Error{Kind: Model, Message: "model not loaded"}
	ErrDecodeFailed       = &Error{Kind: Transcription, Message: "decode failed"}
	ErrCancelled          = &Error{Kind: State, Message: "cancelled"}
	ErrEmptyTranscription = &Error{Kind: Transcription, Message: "transcription returned empty text"}
	ErrUnreachable        = &Error{Kind: Network, Message: "endpoint unreachable"}
	ErrMalformedChunk     = &Error{Kind: Network, Message: "malformed streaming chunk"}
)

// HTTPStatus builds a Network error carrying a response status and body,
// matching spec.md §4.8's HttpStatus(status, body) error.
func HTTPStatus(status int, body string) *Error {
	return &Error{
		Kind:    Network,
		Message: fmt.Sprintf("unexpected HTTP status %d", status),
		Details: body,
	}
}
