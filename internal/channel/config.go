package channel

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/callsink/callsink-go/contracts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Config is the immutable bundle of transport tuning values, captured once
// before the channel is opened. Changing it after Connect has no effect; the
// channel must be reconnected to pick up new values.
type Config struct {
	// ConnectTimeout bounds the readiness wait when the caller's context
	// carries no deadline of its own.
	ConnectTimeout time.Duration

	// IdleTimeout is the duration without ongoing calls before the channel
	// goes idle.
	IdleTimeout time.Duration

	// KeepAliveTime is the duration without read activity before a keepalive
	// ping. Zero disables keepalive pinging.
	KeepAliveTime time.Duration

	// KeepAliveTimeout is the wait for read activity after a keepalive ping.
	KeepAliveTimeout time.Duration

	// KeepAliveWithoutCalls permits keepalive pings with no outstanding
	// calls on the connection.
	KeepAliveWithoutCalls bool

	// EnableRetry enables the transport's retry and hedging mechanism.
	EnableRetry bool

	// MaxRetryAttempts caps retry attempts per call.
	MaxRetryAttempts int

	// MaxHedgedAttempts caps hedged attempts per call. Hedging applies only
	// when retries are not configured above a single attempt; the transport
	// rejects a method config carrying both policies.
	MaxHedgedAttempts int

	// RetryBufferSize is the aggregate retry buffer bound in bytes. grpc-go
	// bounds retry buffering per call, so this value caps the effective
	// per-call bound.
	RetryBufferSize int

	// PerRPCBufferSize is the per-call retry buffer bound in bytes. A call
	// exceeding it is not retriable.
	PerRPCBufferSize int

	// TerminationWait bounds the graceful-shutdown drain at disconnect.
	TerminationWait time.Duration

	// MaxInboundMessageSize caps received message size in bytes.
	MaxInboundMessageSize int

	// MaxInboundMetadataSize caps received metadata size in bytes.
	MaxInboundMetadataSize int

	// TLS supplies the TLS configuration for grpcs targets. Ignored for
	// plaintext targets.
	TLS *tls.Config
}

// DefaultConfig returns the default tuning values.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:         10 * time.Second,
		IdleTimeout:            1800 * time.Second,
		KeepAliveTime:          0,
		KeepAliveTimeout:       20 * time.Second,
		KeepAliveWithoutCalls:  false,
		EnableRetry:            false,
		MaxRetryAttempts:       5,
		MaxHedgedAttempts:      5,
		RetryBufferSize:        16 * 1024 * 1024,
		PerRPCBufferSize:       1024 * 1024,
		TerminationWait:        5 * time.Second,
		MaxInboundMessageSize:  4 * 1024 * 1024,
		MaxInboundMetadataSize: 8 * 1024,
	}
}

// Validate rejects values the transport cannot honor. Violations are
// definition-time configuration errors.
func (c Config) Validate() error {
	check := func(option string, ok bool, reason string) error {
		if ok {
			return nil
		}
		return &contracts.ConfigError{Option: option, Reason: reason}
	}

	if err := check("idle.timeout", c.IdleTimeout >= 0, "must not be negative"); err != nil {
		return err
	}
	if err := check("keep.alive.time", c.KeepAliveTime >= 0, "must not be negative"); err != nil {
		return err
	}
	if err := check("keep.alive.timeout", c.KeepAliveTimeout >= 0, "must not be negative"); err != nil {
		return err
	}
	if err := check("max.retry.attempts", c.MaxRetryAttempts >= 1, "must be at least 1"); err != nil {
		return err
	}
	if err := check("max.hedged.attempts", c.MaxHedgedAttempts >= 1, "must be at least 1"); err != nil {
		return err
	}
	if err := check("retry.buffer.size", c.RetryBufferSize > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("per.rpc.buffer.size", c.PerRPCBufferSize > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("per.rpc.buffer.size", c.PerRPCBufferSize <= c.RetryBufferSize,
		"must not exceed retry.buffer.size"); err != nil {
		return err
	}
	if err := check("channel.termination.waiting.time", c.TerminationWait > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("max.inbound.message.size", c.MaxInboundMessageSize > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("max.inbound.metadata.size", c.MaxInboundMetadataSize > 0, "must be positive"); err != nil {
		return err
	}
	return nil
}

// dialOptions translates the bundle into transport-level settings. Called
// exactly once, at connect time.
func (c Config) dialOptions(target Target) ([]grpc.DialOption, error) {
	var opts []grpc.DialOption

	if target.Secure {
		tlsConfig := c.TLS
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if c.IdleTimeout > 0 {
		opts = append(opts, grpc.WithIdleTimeout(c.IdleTimeout))
	}

	if c.KeepAliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.KeepAliveTime,
			Timeout:             c.KeepAliveTimeout,
			PermitWithoutStream: c.KeepAliveWithoutCalls,
		}))
	}

	opts = append(opts, grpc.WithMaxHeaderListSize(uint32(c.MaxInboundMetadataSize)))

	perCallBuffer := c.PerRPCBufferSize
	if c.RetryBufferSize < perCallBuffer {
		perCallBuffer = c.RetryBufferSize
	}
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(c.MaxInboundMessageSize),
		grpc.MaxRetryRPCBufferSize(perCallBuffer),
	))

	if !c.EnableRetry {
		opts = append(opts, grpc.WithDisableRetry())
		return opts, nil
	}

	sc, err := c.serviceConfig(target.Service)
	if err != nil {
		return nil, &contracts.ConfigError{Option: "enable.retry", Reason: "cannot build service config", Err: err}
	}
	if sc != "" {
		opts = append(opts, grpc.WithDefaultServiceConfig(sc))
	}
	if attempts := c.attemptCap(); attempts >= 2 {
		opts = append(opts, grpc.WithMaxCallAttempts(attempts))
	}
	return opts, nil
}

func (c Config) attemptCap() int {
	if c.MaxRetryAttempts > c.MaxHedgedAttempts {
		return c.MaxRetryAttempts
	}
	return c.MaxHedgedAttempts
}

// Service config JSON shapes, per the transport's method-config schema.
type serviceConfigJSON struct {
	MethodConfig []methodConfigJSON `json:"methodConfig,omitempty"`
}

type methodConfigJSON struct {
	Name          []methodNameJSON   `json:"name"`
	RetryPolicy   *retryPolicyJSON   `json:"retryPolicy,omitempty"`
	HedgingPolicy *hedgingPolicyJSON `json:"hedgingPolicy,omitempty"`
}

type methodNameJSON struct {
	Service string `json:"service,omitempty"`
}

type retryPolicyJSON struct {
	MaxAttempts          int      `json:"maxAttempts"`
	InitialBackoff       string   `json:"initialBackoff"`
	MaxBackoff           string   `json:"maxBackoff"`
	BackoffMultiplier    float64  `json:"backoffMultiplier"`
	RetryableStatusCodes []string `json:"retryableStatusCodes"`
}

type hedgingPolicyJSON struct {
	MaxAttempts         int      `json:"maxAttempts"`
	HedgingDelay        string   `json:"hedgingDelay"`
	NonFatalStatusCodes []string `json:"nonFatalStatusCodes,omitempty"`
}

const (
	retryInitialBackoff = 100 * time.Millisecond
	retryMaxBackoff     = 30 * time.Second
	retryMultiplier     = 2.0
	hedgingDelay        = time.Second
)

// serviceConfig builds the method config carrying the retry or hedging
// policy for the target service. Retry wins when both attempt caps are
// raised; the two policies cannot share a method config.
func (c Config) serviceConfig(service string) (string, error) {
	mc := methodConfigJSON{Name: []methodNameJSON{{Service: service}}}

	switch {
	case c.MaxRetryAttempts > 1:
		mc.RetryPolicy = &retryPolicyJSON{
			MaxAttempts:          c.MaxRetryAttempts,
			InitialBackoff:       formatDuration(retryInitialBackoff),
			MaxBackoff:           formatDuration(retryMaxBackoff),
			BackoffMultiplier:    retryMultiplier,
			RetryableStatusCodes: []string{"UNAVAILABLE"},
		}
	case c.MaxHedgedAttempts > 1:
		mc.HedgingPolicy = &hedgingPolicyJSON{
			MaxAttempts:         c.MaxHedgedAttempts,
			HedgingDelay:        formatDuration(hedgingDelay),
			NonFatalStatusCodes: []string{"UNAVAILABLE"},
		}
	default:
		return "", nil
	}

	data, err := json.Marshal(serviceConfigJSON{MethodConfig: []methodConfigJSON{mc}})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatDuration renders a duration in the decimal-seconds form the service
// config schema expects, e.g. "0.1s" or "30s".
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
