// Package errs holds the error taxonomy shared by the alert pipeline.
// Callers wrap one of the sentinels and match with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrSignalUnavailable marks an upstream signal source that is down or timed out.
	// The affected factor is excluded from the cycle.
	ErrSignalUnavailable = errors.New("signal unavailable")

	// ErrStoreWriteConflict marks a concurrent write race on the same natural key.
	// The write is retried.
	ErrStoreWriteConflict = errors.New("store write conflict")

	// ErrMalformedInput marks an unparseable tick or news item. The item is dropped.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConfiguration marks invalid settings at startup. Fatal.
	ErrConfiguration = errors.New("configuration error")
)

// SignalUnavailable wraps err as an unavailable signal from source.
func SignalUnavailable(source string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSignalUnavailable, source)
	}
	return fmt.Errorf("%w: %s: %w", ErrSignalUnavailable, source, err)
}

// MalformedInput wraps a parse or validation failure for kind.
func MalformedInput(kind string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedInput, kind, err)
}

// WriteConflict reports a lost race on key.
func WriteConflict(key string) error {
	return fmt.Errorf("%w: %s", ErrStoreWriteConflict, key)
}

// Configuration reports an invalid setting.
func Configuration(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}

// IsRetryable reports whether err should be retried by the write path.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreWriteConflict)
}
