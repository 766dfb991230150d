package callsink

import (
	"log/slog"
	"time"

	"github.com/callsink/callsink-go/dispatch"
	"github.com/callsink/callsink-go/internal/channel"
	"github.com/callsink/callsink-go/internal/reliability"
)

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger       *slog.Logger
	channel      channel.Config
	key          string
	sequence     string
	name         string
	genericCodec dispatch.GenericCodec
	oneWayOnly   bool
	retryPolicy  reliability.Policy
}

// WithLogger sets the logger used by every component of the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithChannelConfig replaces the default transport tuning bundle. The bundle
// is applied exactly once at connect; changing it afterwards requires a
// reconnect.
func WithChannelConfig(config ChannelConfig) ClientOption {
	return func(c *clientConfig) {
		c.channel = channel.Config(config)
	}
}

// WithCorrelationKey sets the key under which responses are routed. Exactly
// one response handler should be registered under the same key. Mandatory
// unless the client is one-way only.
func WithCorrelationKey(key string) ClientOption {
	return func(c *clientConfig) {
		c.key = key
	}
}

// WithSequenceLabel sets the static sequence label prepended to every
// composed per-call header.
func WithSequenceLabel(label string) ClientOption {
	return func(c *clientConfig) {
		c.sequence = label
	}
}

// WithClientName sets the identity used in log records, typically the
// hosting pipeline's stream name.
func WithClientName(name string) ClientOption {
	return func(c *clientConfig) {
		c.name = name
	}
}

// WithGenericCodec switches the client into generic mode: payload and
// response marshaling are delegated to the supplied codec and the wire
// contract is whatever the external service description defines.
func WithGenericCodec(codec dispatch.GenericCodec) ClientOption {
	return func(c *clientConfig) {
		c.genericCodec = codec
	}
}

// WithOneWayOnly declares that the client never expects responses. The
// correlation key becomes optional and Dispatch is rejected; use
// DispatchOneWay.
func WithOneWayOnly() ClientOption {
	return func(c *clientConfig) {
		c.oneWayOnly = true
	}
}

// WithConnectRetry wraps Connect in an exponential-backoff retry loop.
// Connectivity failures are re-attempted up to maxAttempts times starting at
// initialDelay; all other failures surface immediately.
func WithConnectRetry(maxAttempts int, initialDelay time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retryPolicy = reliability.NewExponentialBackoff(initialDelay, 30*time.Second, 2.0, maxAttempts)
	}
}
