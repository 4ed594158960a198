package worker

import (
	"errors"
	"fmt"
)

// OutcomeKind tags the result of a handler.
type OutcomeKind int

const (
	KindOK OutcomeKind = iota
	KindSoftFail
	KindError
)

// String returns the wire name of k.
func (k OutcomeKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSoftFail:
		return "soft_fail"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is Ok(value), SoftFail(value) or Error(cause).
type Outcome struct {
	kind  OutcomeKind
	value any
	cause error
}

// Ok reports success with value.
func Ok(value any) Outcome {
	return Outcome{kind: KindOK, value: value}
}

// SoftFail reports a failure that still carries a value. The response status
// becomes fail; remaining workers still run.
func SoftFail(value any) Outcome {
	return Outcome{kind: KindSoftFail, value: value}
}

// Error reports an application error. The response status becomes error and
// the remaining workers are skipped.
func Error(cause error) Outcome {
	if cause == nil {
		cause = errors.New("unspecified application error")
	}
	return Outcome{kind: KindError, cause: cause}
}

// Errorf is Error with a formatted AppError.
func Errorf(format string, args ...any) Outcome {
	return Error(&AppError{Message: fmt.Sprintf(format, args...)})
}

// Kind returns which of Ok, SoftFail or Error o is.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Value returns the value of an Ok or SoftFail outcome.
func (o Outcome) Value() any { return o.value }

// Cause returns the error of an Error outcome.
func (o Outcome) Cause() error { return o.cause }

// AppError is an application-level failure raised by a worker.
type AppError struct {
	Message string
	Err     error
}

// Error returns the message, followed by the wrapped error if any.
func (e *AppError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsApplicationError reports whether err is, or wraps, an *AppError.
func IsApplicationError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// Fail converts a handler error into an Outcome when it is an application
// error. Any other error is returned unchanged as fatal.
func Fail(err error) (Outcome, error) {
	if IsApplicationError(err) {
		return Error(err), nil
	}
	return Outcome{}, err
}
