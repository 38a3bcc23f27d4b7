package stream

import "errors"

var (
	// ErrTransport marks a failure raised by the chunk source itself.
	ErrTransport = errors.New("stream transport failure")
	// ErrCanceled marks consumption stopped by the caller's context.
	ErrCanceled = errors.New("stream canceled")
)

// consumeError pairs a failure kind with its cause so that errors.Is
// matches both.
type consumeError struct {
	kind  error
	cause error
}

func (e *consumeError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *consumeError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

func transportError(cause error) error {
	return &consumeError{kind: ErrTransport, cause: cause}
}

func canceledError(cause error) error {
	return &consumeError{kind: ErrCanceled, cause: cause}
}
