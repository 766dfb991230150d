package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/callsink/callsink-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	// The in-process test server resolves the codec by content subtype.
	encoding.RegisterCodec(eventCodec{})
}

type echoService struct{}

func echoHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	event := &contracts.Event{}
	if err := dec(event); err != nil {
		return nil, err
	}
	return event, nil
}

// startEchoServer runs an EventService that echoes every payload unchanged.
func startEchoServer(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "EventService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "process", Handler: echoHandler},
			{MethodName: "consume", Handler: echoHandler},
		},
	}, echoService{})

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

func TestManager(t *testing.T) {
	t.Run("connects and invokes against a live server", func(t *testing.T) {
		addr := startEchoServer(t)
		target := Target{Address: addr, Service: "EventService", Method: "process"}
		manager := NewManager(target, testConfig())

		require.NoError(t, manager.Connect(context.Background()))
		assert.True(t, manager.Connected())

		reply := &contracts.Event{}
		err := manager.Invoke(context.Background(), target.FullMethod(), contracts.NewEvent("hello"), reply)
		require.NoError(t, err)
		assert.Equal(t, "hello", reply.Payload)

		require.NoError(t, manager.Close())
		assert.False(t, manager.Connected())
	})

	t.Run("connect is idempotent while connected", func(t *testing.T) {
		addr := startEchoServer(t)
		manager := NewManager(Target{Address: addr, Service: "EventService", Method: "process"}, testConfig())
		t.Cleanup(func() { _ = manager.Close() })

		require.NoError(t, manager.Connect(context.Background()))
		assert.NoError(t, manager.Connect(context.Background()))
	})

	t.Run("unreachable target surfaces a retryable connectivity error", func(t *testing.T) {
		cfg := testConfig()
		cfg.ConnectTimeout = 300 * time.Millisecond
		manager := NewManager(Target{Address: "127.0.0.1:1", Service: "EventService", Method: "process"}, cfg)

		err := manager.Connect(context.Background())

		var connErr *contracts.ConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "connect", connErr.Op)
		assert.True(t, contracts.IsRetryable(err))
		assert.False(t, manager.Connected())
	})

	t.Run("invoke before connect fails its precondition", func(t *testing.T) {
		manager := NewManager(Target{Address: "localhost:9763", Service: "EventService", Method: "process"}, testConfig())

		err := manager.Invoke(context.Background(), "/EventService/process", contracts.NewEvent("x"), &contracts.Event{})
		assert.ErrorIs(t, err, contracts.ErrNotConnected)
	})

	t.Run("close without a connection is a no-op", func(t *testing.T) {
		manager := NewManager(Target{Address: "localhost:9763", Service: "EventService", Method: "process"}, testConfig())
		assert.NoError(t, manager.Close())
	})
}
