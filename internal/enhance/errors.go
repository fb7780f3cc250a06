package enhance

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// Kind classifies a pipeline failure. Only the HTTP boundary turns a Kind
// into a status code.
type Kind string

const (
	KindMissingInput Kind = "missing_input"
	KindInvalidInput Kind = "invalid_input"
	KindRemoteCall   Kind = "remote_call"
	KindRemoteJob    Kind = "remote_job"
	KindPollTimeout  Kind = "poll_timeout"
	KindDownload     Kind = "download"
	KindInternal     Kind = "internal"
)

// Error is the typed failure returned by Service.Enhance. Message is safe to
// show to the client; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Stage   models.Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix += " (" + string(e.Stage) + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return prefix + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "An unexpected error occurred"
}

func newError(kind Kind, stage models.Stage, msg string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: msg, Err: err}
}
