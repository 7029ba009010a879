// Package pipeline holds the vocabulary shared by the orchestrator, the
// completion callback and the HTTP layer: error kinds, non-fatal warnings and
// regeneration modes.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindInvalidPayload       Kind = "invalid_payload"
	KindDataIntegrity        Kind = "data_integrity"
	KindPreconditionFailed   Kind = "precondition_failed"
	KindDispatchFailed       Kind = "dispatch_failed"
	KindPostProcessingFailed Kind = "post_processing_failed"
	KindInternal             Kind = "internal"

	// Warning-only kinds. They never fail the enclosing operation.
	KindPartialArtifactDeletion      Kind = "partial_artifact_deletion"
	KindDownstreamNotificationFailed Kind = "downstream_notification_failed"
)

// Error is a classified failure with an optional remediation hint.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around err.
func Wrap(kind Kind, op string, err error, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// WithHint attaches a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// HintOf returns the remediation hint carried by err, if any.
func HintOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Hint
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code returned to HTTP callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidPayload, KindDataIntegrity:
		return http.StatusBadRequest
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindDispatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
