package dpvalidate

import "fmt"

// RejectionError is returned from [Pipeline.Run] when a check fails.
// Rejections are not fatal: the payload is simply not applied.
type RejectionError struct {
	Stage  Stage
	Reason string

	// Underlying error, if the rejection was caused by one.
	Err error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected at %s: %s", e.Stage, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func reject(s Stage, format string, args ...any) error {
	return &RejectionError{Stage: s, Reason: fmt.Sprintf(format, args...)}
}

func rejectErr(s Stage, err error) error {
	return &RejectionError{Stage: s, Reason: err.Error(), Err: err}
}
