package syncer

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorKind classifies a reported failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindDelegate   ErrorKind = "delegate"
	KindAuth       ErrorKind = "auth"
	KindUnexpected ErrorKind = "unexpected"
)

// Wire codes carried in error envelopes.
const (
	CodeValidation       = "validation_error"
	CodeTermNotFound     = "term_not_found"
	CodePostNotFound     = "post_not_found"
	CodeTaxonomyMismatch = "taxonomy_mismatch"
	CodeAlreadyLinked    = "already_linked"
	CodeLinkFailed       = "link_failed"
	CodeSyncError        = "sync_error"
	CodeUnauthorized     = "rest_unauthorized"
	CodeForbidden        = "rest_forbidden"
	CodeInvalidNonce     = "rest_invalid_nonce"
)

// Error is a reported sync failure. Handler returns it for every failure
// path; callers render it with Status.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Reasons []string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus returns the response status for e, defaulting by kind.
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if e.Status > 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindNotFound, KindConflict, KindDelegate:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func ValidationError(reasons []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: "Invalid parameters: " + strings.Join(reasons, ", "),
		Reasons: append([]string(nil), reasons...),
		Status:  http.StatusBadRequest,
	}
}

func NotFoundError(code, message string, err error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func ConflictError(code, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// DelegateError reports a store rejection verbatim. status is 400 when the
// store refused the input and 500 when it failed on its own.
func DelegateError(status int, err error) *Error {
	message := "Failed to link translations"
	if err != nil {
		message = err.Error()
	}
	return &Error{
		Kind:    KindDelegate,
		Code:    CodeLinkFailed,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// AuthError reports a missing identity (401) or a refused one (403).
func AuthError(status int, code, message string) *Error {
	return &Error{
		Kind:    KindAuth,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func UnexpectedError(prefix string, err error) *Error {
	message := prefix
	if err != nil {
		message = prefix + ": " + err.Error()
	}
	return &Error{
		Kind:    KindUnexpected,
		Code:    CodeSyncError,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}
