// Package apperr holds the closed set of error kinds the API knows how to
// answer with. SDK and driver errors get mapped into one of these at the
// storage, index and auth boundaries; handlers only ever switch on the kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUpstream
	KindAuthExpired
	KindAuthMalformed
	KindAuthInvalid
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUpstream:
		return "upstream"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthMalformed:
		return "auth_malformed"
	case KindAuthInvalid:
		return "auth_invalid"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to clients for the
// client-facing kinds, Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Upstream wraps a failure of a remote dependency. Errors that were already
// classified keep their kind.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return &Error{Kind: KindUpstream, Message: op, Err: err}
}

func Auth(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindAuthExpired, KindAuthMalformed, KindAuthInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be sent back to a client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Internal server error"
	}

	switch e.Kind {
	case KindValidation, KindNotFound, KindForbidden:
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	case KindAuthExpired:
		return "Authorization token expired. Please log in again"
	case KindAuthMalformed:
		return "Authorization token malformed"
	case KindAuthInvalid:
		return "Authorization token invalid"
	case KindUpstream:
		return "Upstream service unavailable"
	default:
		return "Internal server error"
	}
}
