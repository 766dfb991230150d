package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/callsink/callsink-go/contracts"
)

// ResponseHandler consumes a resolved response and injects it into the
// downstream pipeline. Under transport retry or hedging a handler may observe
// more than one delivery for a single logical request; implementations must
// tolerate duplicates.
type ResponseHandler interface {
	OnResponse(ctx context.Context, event *contracts.Event)
}

// ResponseHandlerFunc is a function adapter for ResponseHandler.
type ResponseHandlerFunc func(ctx context.Context, event *contracts.Event)

// OnResponse implements ResponseHandler.
func (f ResponseHandlerFunc) OnResponse(ctx context.Context, event *contracts.Event) {
	f(ctx, event)
}

// CorrelationRegistry maps correlation keys to the currently registered
// response handler. It is the rendezvous point between request-issuing and
// response-consuming components, which may be defined, started, and torn down
// at different times.
//
// Create one registry at process start and hand the same reference to every
// client and consumer. The registry is never implicitly reset.
type CorrelationRegistry struct {
	handlers map[string]ResponseHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// RegistryOption configures the CorrelationRegistry.
type RegistryOption func(*CorrelationRegistry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *CorrelationRegistry) {
		r.logger = logger
	}
}

// NewCorrelationRegistry creates an empty registry.
func NewCorrelationRegistry(options ...RegistryOption) *CorrelationRegistry {
	r := &CorrelationRegistry{
		handlers: make(map[string]ResponseHandler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register binds handler to key, replacing any existing handler. The prior
// handler receives no further deliveries. Re-registration is not an error:
// it happens naturally when a consumer is redefined or restarted.
func (r *CorrelationRegistry) Register(key string, handler ResponseHandler) error {
	if key == "" {
		return fmt.Errorf("correlation key cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	_, replaced := r.handlers[key]
	r.handlers[key] = handler
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("replaced response handler", "correlationKey", key)
	}
	return nil
}

// Unregister removes the handler for key. It is a no-op when no handler is
// registered.
func (r *CorrelationRegistry) Unregister(key string) {
	r.mu.Lock()
	delete(r.handlers, key)
	r.mu.Unlock()
}

// Resolve returns the handler currently registered under key. It never
// blocks and never mutates. Callers must not cache the returned handler
// beyond a single resolve-and-deliver.
func (r *CorrelationRegistry) Resolve(key string) (ResponseHandler, bool) {
	r.mu.RLock()
	handler, ok := r.handlers[key]
	r.mu.RUnlock()
	return handler, ok
}

// Len returns the number of registered handlers.
func (r *CorrelationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
