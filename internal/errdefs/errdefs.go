// ABOUTME: Error taxonomy shared by the repository, upload pipeline, and HTTP layer
// ABOUTME: Kind sentinels for errors.Is matching, Error carries the backend message verbatim

package errdefs

import (
	"errors"
)

// Kind sentinels. Match with errors.Is.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrPersistence     = errors.New("persistence error")
	ErrUploadFailed    = errors.New("upload failed")
	ErrSigningFailed   = errors.New("signing failed")
)

// Error is a classified failure. Error() returns Message unchanged so callers
// can display it directly.
type Error struct {
	Kind    error  // one of the sentinels above
	Op      string // operation that failed, e.g. "conversation.upsert"
	Message string // human-readable message, usually straight from the backend
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// Persistence classifies a backend read/write failure.
func Persistence(op string, err error) *Error {
	return newError(ErrPersistence, op, err)
}

// UploadFailed classifies an object storage write failure.
func UploadFailed(op string, err error) *Error {
	return newError(ErrUploadFailed, op, err)
}

// SigningFailed classifies a signed URL failure. A nil cause means the
// backend answered without a URL.
func SigningFailed(op string, err error) *Error {
	e := newError(ErrSigningFailed, op, err)
	if err == nil {
		e.Message = "storage returned no signed url"
	}
	return e
}

// Unauthenticated reports a missing session.
func Unauthenticated(op string) *Error {
	return &Error{Kind: ErrUnauthenticated, Op: op, Message: "not authenticated"}
}

// Is reports whether err is classified as kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
