// Package contracts defines the wire-facing types and the error taxonomy
// shared by every layer of callsink.
//
// The default service contract is deliberately small: a request is a single
// text payload, and the response carries the same shape back. Anything richer
// is handled in generic mode, where an externally supplied codec owns the
// wire format.
//
// Errors are split along the lines that matter to a hosting pipeline:
//   - ConfigError: wrong at definition time, never retried
//   - ConnectivityError: the channel could not be established or was lost;
//     the host owns the retry loop
//   - PayloadError: the outbound value does not fit the default contract;
//     fatal for that call only
//
// IsRetryable classifies any error from this module for the host's backoff
// policy.
package contracts
