// Package failure classifies errors so that schedulers and HTTP handlers can tell
// "bad input" apart from "ran and failed".
package failure

import "errors"

var (
	// ErrInvalidInput marks caller contract violations. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProbeFailed marks a probe that ran and observed a failure.
	ErrProbeFailed = errors.New("probe failed")

	// ErrSinkUnavailable marks a failed telemetry write.
	ErrSinkUnavailable = errors.New("telemetry sink unavailable")

	// ErrTrackerUnavailable marks a failed ticket tracker call.
	ErrTrackerUnavailable = errors.New("ticket tracker unavailable")

	// ErrFatal aborts the remaining work of a batch.
	ErrFatal = errors.New("fatal")

	// ErrSchema marks a record type that cannot be mapped to telemetry columns.
	ErrSchema = errors.New("schema error")
)

// IsRetryable reports whether err describes a condition worth retrying on the next schedule.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrFatal) || errors.Is(err, ErrSchema) {
		return false
	}
	return errors.Is(err, ErrProbeFailed) ||
		errors.Is(err, ErrSinkUnavailable) ||
		errors.Is(err, ErrTrackerUnavailable)
}
