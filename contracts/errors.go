package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an operation requires a live channel
	// and the client is not in the connected state.
	ErrNotConnected = errors.New("callsink: not connected")

	// ErrAlreadyConnected is returned when Connect is called on a client
	// that already holds a live channel.
	ErrAlreadyConnected = errors.New("callsink: already connected")

	// ErrMissingCorrelationKey is returned at definition time when a client
	// with a response leg is built without a correlation key.
	ErrMissingCorrelationKey = errors.New("callsink: correlation key is mandatory for receiving responses")

	// ErrShutdownTimeout is returned when in-flight calls did not drain
	// within the configured termination wait. Shutdown still proceeds.
	ErrShutdownTimeout = errors.New("callsink: channel termination wait elapsed with calls in flight")
)

// ConfigError reports an invalid configuration value detected at definition
// time. It is never retryable.
type ConfigError struct {
	Option string // Configuration option that failed validation
	Reason string // Why it was rejected
	Err    error  // Underlying error, if any
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("callsink config error: %s: %s: %v", e.Option, e.Reason, e.Err)
	}
	return fmt.Sprintf("callsink config error: %s: %s", e.Option, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConnectivityError reports a failure to establish or use the transport
// channel. The host is expected to re-invoke Connect per its own backoff
// policy.
type ConnectivityError struct {
	Op        string    // Operation that failed
	Target    string    // Channel target address
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("callsink connectivity error: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// PayloadError reports an outbound value that does not fit the default
// contract. It is fatal for that call and does not tear down the channel.
type PayloadError struct {
	Key string // Correlation key of the dispatcher that rejected the payload
	Got string // Type of the offending payload
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("callsink payload error: key %q: payload must be a string for the default contract, got %s", e.Key, e.Got)
}

// IsRetryable reports whether the host may usefully retry the operation that
// produced err. Only connectivity failures are retryable; configuration and
// payload contract violations are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}

	return false
}
