package ai

import "errors"

// ErrorKind classifies why a completion failed.
type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// CompletionError carries the kind of an upstream failure next to its cause.
type CompletionError struct {
	Kind ErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, defaulting to KindTransport for errors that
// were not produced by a Completer.
func KindOf(err error) ErrorKind {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}
