package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/callsink/callsink-go/contracts"
	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// Invoker issues a single unary call on a live channel. *channel.Manager
// satisfies this; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, method string, req, reply any) error
}

// Mode selects how outbound payloads are turned into requests.
type Mode interface {
	isMode()
}

// DefaultMode uses the built-in single-text-field contract. Payloads must be
// strings; anything else fails synchronously without issuing a call.
type DefaultMode struct{}

func (DefaultMode) isMode() {}

// GenericMode dispatches against an externally described service. The
// supplied codec owns the wire format.
type GenericMode struct {
	Codec GenericCodec
}

func (GenericMode) isMode() {}

// GenericCodec marshals outbound payloads for an externally described
// service and maps response bytes back into the pipeline's event shape.
type GenericCodec interface {
	MarshalRequest(payload any) ([]byte, error)
	UnmarshalResponse(data []byte) (*contracts.Event, error)
}

// Dispatcher builds requests from outbound payloads, issues them
// asynchronously on the bound channel, and routes completions through the
// correlation registry under its own key.
//
// Lifecycle: constructed at definition time, armed with Bind once the
// channel is connected, released by Shutdown. Dispatch outside the bound
// state is a precondition violation.
type Dispatcher struct {
	key      string
	mode     Mode
	sequence string
	name     string
	registry *CorrelationRegistry
	logger   *slog.Logger

	mu           sync.RWMutex
	invoker      Invoker
	method       string
	oneWayMethod string
	baseCtx      context.Context
	cancel       context.CancelFunc
	inflight     sync.WaitGroup
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMode sets the dispatch mode. Defaults to DefaultMode.
func WithMode(mode Mode) DispatcherOption {
	return func(d *Dispatcher) {
		d.mode = mode
	}
}

// WithSequenceLabel sets the static sequence label prepended to every
// composed header value.
func WithSequenceLabel(label string) DispatcherOption {
	return func(d *Dispatcher) {
		d.sequence = label
	}
}

// WithDispatcherName sets the identity used in log records, typically the
// hosting pipeline's stream name.
func WithDispatcherName(name string) DispatcherOption {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher that routes responses through registry
// under key. The key may be empty only when the dispatcher is used purely
// for one-way calls.
func NewDispatcher(key string, registry *CorrelationRegistry, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		key:      key,
		mode:     DefaultMode{},
		registry: registry,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Key returns the dispatcher's correlation key.
func (d *Dispatcher) Key() string {
	return d.key
}

// CallOption configures a single dispatch.
type CallOption func(*callOptions)

type callOptions struct {
	header string
}

// WithHeaderValue attaches a per-call computed header value, concatenated
// after the static sequence label in the composed header.
func WithHeaderValue(value string) CallOption {
	return func(o *callOptions) {
		o.header = value
	}
}

// Bind arms the dispatcher with a live invoker and the methods to call.
// Completions run on a context owned by the dispatcher, not the dispatch
// caller's, so they survive the caller returning.
func (d *Dispatcher) Bind(invoker Invoker, method, oneWayMethod string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.invoker = invoker
	d.method = method
	d.oneWayMethod = oneWayMethod
	d.baseCtx, d.cancel = context.WithCancel(context.Background())
}

// Bound reports whether the dispatcher currently holds a live invoker.
func (d *Dispatcher) Bound() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.invoker != nil
}

// Dispatch builds a request from payload and issues it asynchronously on the
// request/response method. It never blocks on the network; only errors
// knowable synchronously (precondition, payload shape, marshal failures) are
// returned. Everything after the call leaves the process is routed through
// the registry or the log.
func (d *Dispatcher) Dispatch(ctx context.Context, payload any, options ...CallOption) error {
	return d.dispatch(ctx, payload, false, options)
}

// DispatchOneWay issues a call on the one-way method. No response is routed;
// failures are logged. Legal without a correlation key.
func (d *Dispatcher) DispatchOneWay(ctx context.Context, payload any, options ...CallOption) error {
	return d.dispatch(ctx, payload, true, options)
}

func (d *Dispatcher) dispatch(ctx context.Context, payload any, oneWay bool, options []CallOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := callOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	d.mu.RLock()
	inv := d.invoker
	if inv == nil {
		d.mu.RUnlock()
		return fmt.Errorf("dispatch %q: %w", d.name, contracts.ErrNotConnected)
	}
	callCtx := d.baseCtx
	method := d.method
	if oneWay {
		method = d.oneWayMethod
	}

	if value := composeHeader(d.sequence, opts.header); value != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, HeaderKey, value)
	}

	switch m := d.mode.(type) {
	case DefaultMode:
		text, ok := payload.(string)
		if !ok {
			d.mu.RUnlock()
			return &contracts.PayloadError{Key: d.key, Got: fmt.Sprintf("%T", payload)}
		}
		d.inflight.Add(1)
		d.mu.RUnlock()
		go d.completeDefault(callCtx, inv, method, contracts.NewEvent(text), oneWay)
		return nil

	case GenericMode:
		data, err := m.Codec.MarshalRequest(payload)
		if err != nil {
			d.mu.RUnlock()
			return fmt.Errorf("marshal request: %w", err)
		}
		d.inflight.Add(1)
		d.mu.RUnlock()
		go d.completeGeneric(callCtx, inv, m.Codec, method, data, oneWay)
		return nil

	default:
		d.mu.RUnlock()
		return fmt.Errorf("unsupported dispatch mode %T", d.mode)
	}
}

func (d *Dispatcher) completeDefault(ctx context.Context, inv Invoker, method string, req *contracts.Event, oneWay bool) {
	defer d.inflight.Done()

	callID := uuid.NewString()
	reply := &contracts.Event{}
	if err := inv.Invoke(ctx, method, req, reply); err != nil {
		d.logger.Error("call failed",
			"client", d.name,
			"correlationKey", d.key,
			"callId", callID,
			"method", method,
			"error", err)
		return
	}
	if oneWay {
		return
	}
	d.deliver(ctx, callID, reply)
}

func (d *Dispatcher) completeGeneric(ctx context.Context, inv Invoker, codec GenericCodec, method string, req []byte, oneWay bool) {
	defer d.inflight.Done()

	callID := uuid.NewString()
	var raw []byte
	if err := inv.Invoke(ctx, method, req, &raw); err != nil {
		d.logger.Error("call failed",
			"client", d.name,
			"correlationKey", d.key,
			"callId", callID,
			"method", method,
			"error", err)
		return
	}
	if oneWay {
		return
	}

	reply, err := codec.UnmarshalResponse(raw)
	if err != nil {
		d.logger.Error("response unmarshal failed",
			"client", d.name,
			"correlationKey", d.key,
			"callId", callID,
			"error", err)
		return
	}
	d.deliver(ctx, callID, reply)
}

// deliver routes a completed response to whichever handler is currently
// registered. An absent handler is a valid, logged state: the consumer side
// may not yet, or no longer, be active.
func (d *Dispatcher) deliver(ctx context.Context, callID string, reply *contracts.Event) {
	handler, ok := d.registry.Resolve(d.key)
	if !ok {
		d.logger.Warn("response dropped, no handler registered",
			"client", d.name,
			"correlationKey", d.key,
			"callId", callID)
		return
	}
	handler.OnResponse(ctx, reply)
}

// Shutdown releases the invoker, waits up to wait for in-flight calls to
// drain, and cancels any still running after the deadline. It returns
// ErrShutdownTimeout when the bound elapsed; shutdown is still considered
// initiated and the dispatcher is unbound either way.
func (d *Dispatcher) Shutdown(wait time.Duration) error {
	d.mu.Lock()
	inv := d.invoker
	cancel := d.cancel
	d.invoker = nil
	d.cancel = nil
	d.mu.Unlock()

	if inv == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-time.After(wait):
		cancel()
		return contracts.ErrShutdownTimeout
	}
}
