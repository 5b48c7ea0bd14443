// Package faults defines the error taxonomy shared by the ingestion and
// retrieval pipelines. Errors carry a Kind so that boundaries (HTTP
// handlers, the task worker, document status updates) can map failures
// without string matching.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Kind partitions failures by how callers must react to them.
type Kind string

const (
	// NotFound: an absent blob, document or task.
	NotFound Kind = "NotFound"
	// Unsupported: a file type the normaliser cannot route.
	Unsupported Kind = "Unsupported"
	// Upstream: store/model/bus I/O that failed after retries.
	Upstream Kind = "Upstream"
	// Validation: malformed input, bad UUID, bad URL, unknown task kind.
	Validation Kind = "Validation"
	// Race: losing a unique-constraint claim; resolves to a skip.
	Race Kind = "Race"
	// Transient: retriable 429/5xx/parse failures.
	Transient Kind = "Transient"
	// Fatal: everything else.
	Fatal Kind = "Fatal"
)

// Error is a classified error with an operation name for log context.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf is Wrap with an extra message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies an arbitrary error. Unclassified errors are Fatal;
// context cancellation and deadline expiry classify as Transient so bus
// deliveries are retried.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Fatal
}

// Is lets errors.Is match against bare kinds via faults.New(kind, "", "").
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}

// Label renders the stable "Kind: message" form persisted in
// documents.error_message and processing_tasks.error_message.
func Label(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", KindOf(err), rootMessage(err))
}

// rootMessage digs out the innermost message so labels stay short.
func rootMessage(err error) string {
	for {
		var fe *Error
		if !errors.As(err, &fe) {
			return err.Error()
		}
		if fe.Err == nil {
			return fe.Msg
		}
		if fe.Msg != "" {
			return fmt.Sprintf("%s: %v", fe.Msg, fe.Err)
		}
		err = fe.Err
	}
}

// IsTransient reports whether the error should be retried by its producer.
func IsTransient(err error) bool { return KindOf(err) == Transient }
