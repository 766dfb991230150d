package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/callsink/callsink-go/contracts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// Manager owns one transport channel. Configuration is applied exactly once,
// at connect time; once connected, concurrent invokes share the channel
// freely and the transport multiplexes them.
type Manager struct {
	target Target
	config Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *grpc.ClientConn
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an unconnected manager for target.
func NewManager(target Target, config Config, options ...ManagerOption) *Manager {
	m := &Manager{
		target: target,
		config: config,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// Connect opens the channel and waits for it to become ready. Failure is
// surfaced as a ConnectivityError so the host's backoff policy can decide to
// re-attempt; a manager that is already connected returns nil.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	opts, err := m.config.dialOptions(m.target)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(m.target.Address, opts...)
	if err != nil {
		return &contracts.ConnectivityError{
			Op:        "connect",
			Target:    m.target.String(),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	if err := m.waitForReady(ctx, conn); err != nil {
		conn.Close()
		return &contracts.ConnectivityError{
			Op:        "connect",
			Target:    m.target.String(),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	m.conn = conn
	m.logger.Info("channel connected", "target", m.target.String())
	return nil
}

// waitForReady drives the channel out of idle and blocks until it reports
// ready, the context expires, or ConnectTimeout elapses when the context
// carries no deadline.
func (m *Manager) waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	if _, ok := ctx.Deadline(); !ok && m.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ConnectTimeout)
		defer cancel()
	}

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("channel shut down while connecting")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("channel not ready (last state %s): %w", state, ctx.Err())
		}
	}
}

// Connected reports whether the manager holds a live channel.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// Invoke issues a unary call on the channel. The wire codec is selected by
// request type.
func (m *Manager) Invoke(ctx context.Context, method string, req, reply any) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return contracts.ErrNotConnected
	}
	return conn.Invoke(ctx, method, req, reply, grpc.ForceCodec(codecFor(req)))
}

// Close releases the channel. Draining in-flight calls is the caller's
// responsibility; Close itself does not wait.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	if err != nil {
		return &contracts.ConnectivityError{
			Op:        "close",
			Target:    m.target.String(),
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	m.logger.Info("channel closed", "target", m.target.String())
	return nil
}
