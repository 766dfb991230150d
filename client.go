// Copyright 2025 Callsink Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package callsink dispatches outbound requests over a long-lived gRPC
// channel and routes each response back to a dynamically registered handler
// identified by a correlation key. The request-issuing and
// response-consuming sides are independently lifecycled: build one
// dispatch.CorrelationRegistry at process start, hand the same reference to
// every client and consumer, and let registration and dispatch race freely.
package callsink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/callsink/callsink-go/contracts"
	"github.com/callsink/callsink-go/dispatch"
	"github.com/callsink/callsink-go/internal/channel"
	"github.com/callsink/callsink-go/internal/reliability"
)

// ChannelConfig is the transport tuning bundle applied exactly once at
// connect time.
type ChannelConfig = channel.Config

// DefaultChannelConfig returns the default tuning values.
func DefaultChannelConfig() ChannelConfig {
	return channel.DefaultConfig()
}

// DefaultOneWayMethod is the one-way method of the default contract's
// EventService.
const DefaultOneWayMethod = "consume"

// Client is one dispatcher instance: it owns at most one live channel, one
// correlation key, and one mode. Lifecycle: construct at definition time,
// Connect, dispatch zero or more calls, Disconnect.
type Client struct {
	target      channel.Target
	rawTarget   string
	name        string
	oneWayOnly  bool
	generic     bool
	config      channel.Config
	registry    *dispatch.CorrelationRegistry
	channel     *channel.Manager
	dispatcher  *dispatch.Dispatcher
	retryPolicy reliability.Policy
	logger      *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewClient validates the configuration and builds an unconnected client for
// target, which must look like `grpc://host:port/serviceName/methodName`
// (or grpcs:// for TLS). A correlation key is mandatory whenever a response
// leg exists; omit it only together with WithOneWayOnly. Validation failures
// are definition-time configuration errors, never retried.
func NewClient(target string, registry *dispatch.CorrelationRegistry, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:  slog.Default(),
		channel: channel.DefaultConfig(),
		name:    "callsink",
	}
	for _, opt := range options {
		opt(cfg)
	}

	if registry == nil {
		return nil, &contracts.ConfigError{Option: "registry", Reason: "correlation registry is required"}
	}

	parsed, err := channel.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if err := cfg.channel.Validate(); err != nil {
		return nil, err
	}
	if cfg.key == "" && !cfg.oneWayOnly {
		return nil, &contracts.ConfigError{
			Option: "correlation.key",
			Reason: "required when a response leg exists",
			Err:    contracts.ErrMissingCorrelationKey,
		}
	}

	var mode dispatch.Mode = dispatch.DefaultMode{}
	if cfg.genericCodec != nil {
		mode = dispatch.GenericMode{Codec: cfg.genericCodec}
	}

	dispatcher := dispatch.NewDispatcher(cfg.key, registry,
		dispatch.WithMode(mode),
		dispatch.WithSequenceLabel(cfg.sequence),
		dispatch.WithDispatcherName(cfg.name),
		dispatch.WithDispatcherLogger(cfg.logger),
	)

	manager := channel.NewManager(parsed, cfg.channel,
		channel.WithManagerLogger(cfg.logger),
	)

	return &Client{
		target:      parsed,
		rawTarget:   target,
		name:        cfg.name,
		oneWayOnly:  cfg.oneWayOnly,
		generic:     cfg.genericCodec != nil,
		config:      cfg.channel,
		registry:    registry,
		channel:     manager,
		dispatcher:  dispatcher,
		retryPolicy: cfg.retryPolicy,
		logger:      cfg.logger,
	}, nil
}

// Connect establishes the channel, applying the tuning bundle, and arms the
// dispatcher. Failure is a retryable connectivity error; with
// WithConnectRetry the attempts happen here. Connecting an already connected
// client returns ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return contracts.ErrAlreadyConnected
	}

	var err error
	if c.retryPolicy != nil {
		err = reliability.Retry(ctx, c.retryPolicy, c.channel.Connect)
	} else {
		err = c.channel.Connect(ctx)
	}
	if err != nil {
		return err
	}

	oneWayMethod := c.target.FullMethod()
	if !c.generic {
		oneWayMethod = c.target.MethodPath(DefaultOneWayMethod)
	}
	c.dispatcher.Bind(c.channel, c.target.FullMethod(), oneWayMethod)
	c.connected = true

	c.logger.Info("connected", "client", c.name, "target", c.rawTarget)
	return nil
}

// Connected reports whether the client holds a live channel.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Dispatch issues payload asynchronously and returns without waiting for the
// network. The eventual response is routed through the registry under the
// client's correlation key; failures after the call leaves the process are
// logged, never returned here.
func (c *Client) Dispatch(ctx context.Context, payload any, options ...dispatch.CallOption) error {
	if c.oneWayOnly {
		return &contracts.ConfigError{
			Option: "correlation.key",
			Reason: "client is one-way only, use DispatchOneWay",
		}
	}
	return c.dispatcher.Dispatch(ctx, payload, options...)
}

// DispatchOneWay issues payload on the one-way method. No response is
// routed.
func (c *Client) DispatchOneWay(ctx context.Context, payload any, options ...dispatch.CallOption) error {
	return c.dispatcher.DispatchOneWay(ctx, payload, options...)
}

// Registry returns the registry this client routes responses through.
func (c *Client) Registry() *dispatch.CorrelationRegistry {
	return c.registry
}

// Disconnect drains in-flight calls up to the configured termination wait,
// then releases the channel. When the wait elapses first the shutdown still
// proceeds and ErrShutdownTimeout is returned; at teardown the host may log
// it and continue. Disconnecting an unconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false

	drainErr := c.dispatcher.Shutdown(c.config.TerminationWait)
	closeErr := c.channel.Close()

	if drainErr != nil {
		c.logger.Warn("shutdown wait elapsed with calls in flight",
			"client", c.name,
			"wait", c.config.TerminationWait)
		return drainErr
	}
	return closeErr
}
