package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// IsAuthError reports whether err carries an application error that
// requires the caller to re-authenticate.
func IsAuthError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.IsAuthError()
}

// IsRetryable reports whether the operation that produced err may be
// retried. Errors that never crossed into the application taxonomy are
// retryable by policy unless the context was canceled.
//
// Example:
//
//	err := retry.DoWithRetryable(ctx, cfg, call, shared.IsRetryable)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCanceled(err) {
		return false
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.IsRetryable()
	}
	return true
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
// If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout, either a
// context deadline or a net.Error timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Cause returns the deepest error in err's chain. For errors.Join, the
// first leaf in breadth-first order is returned.
// If err is nil, Cause returns nil.
func Cause(err error) error {
	if err == nil {
		return nil
	}

	all := UnwrapAll(err)
	for i := len(all) - 1; i >= 0; i-- {
		candidate := all[i]

		hasNested := false
		if unwrapper, ok := candidate.(interface{ Unwrap() []error }); ok {
			hasNested = len(unwrapper.Unwrap()) > 0
		} else {
			hasNested = errors.Unwrap(candidate) != nil
		}

		if !hasNested {
			return candidate
		}
	}

	return err
}

const maxUnwrapDepth = 256

// UnwrapAll returns all errors in the error chain, from outermost to innermost.
// For errors created with errors.Join, this flattens the entire error graph.
// If err is nil, returns nil slice.
func UnwrapAll(err error) []error {
	if err == nil {
		return nil
	}

	var result []error
	queue := []error{err}

	// Error values are not always hashable (validator.ValidationErrors is
	// a slice), so a depth cap stands in for cycle detection.
	for len(queue) > 0 && len(result) < maxUnwrapDepth {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		if unwrapper, ok := current.(interface{ Unwrap() []error }); ok {
			queue = append(queue, unwrapper.Unwrap()...)
		} else if nested := errors.Unwrap(current); nested != nil {
			queue = append(queue, nested)
		}
	}

	return result
}
