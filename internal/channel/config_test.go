package channel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/callsink/callsink-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1800*time.Second, cfg.IdleTimeout)
	assert.Equal(t, time.Duration(0), cfg.KeepAliveTime)
	assert.Equal(t, 20*time.Second, cfg.KeepAliveTimeout)
	assert.False(t, cfg.KeepAliveWithoutCalls)
	assert.False(t, cfg.EnableRetry)
	assert.Equal(t, 5, cfg.MaxRetryAttempts)
	assert.Equal(t, 5, cfg.MaxHedgedAttempts)
	assert.Equal(t, 16*1024*1024, cfg.RetryBufferSize)
	assert.Equal(t, 1024*1024, cfg.PerRPCBufferSize)
	assert.Equal(t, 5*time.Second, cfg.TerminationWait)
	assert.Equal(t, 4*1024*1024, cfg.MaxInboundMessageSize)
	assert.Equal(t, 8*1024, cfg.MaxInboundMetadataSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		option string
	}{
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -time.Second }, "idle.timeout"},
		{"negative keepalive time", func(c *Config) { c.KeepAliveTime = -time.Second }, "keep.alive.time"},
		{"negative keepalive timeout", func(c *Config) { c.KeepAliveTimeout = -time.Second }, "keep.alive.timeout"},
		{"zero retry attempts", func(c *Config) { c.MaxRetryAttempts = 0 }, "max.retry.attempts"},
		{"zero hedged attempts", func(c *Config) { c.MaxHedgedAttempts = 0 }, "max.hedged.attempts"},
		{"zero retry buffer", func(c *Config) { c.RetryBufferSize = 0 }, "retry.buffer.size"},
		{"zero per-call buffer", func(c *Config) { c.PerRPCBufferSize = 0 }, "per.rpc.buffer.size"},
		{"per-call buffer above aggregate", func(c *Config) { c.PerRPCBufferSize = c.RetryBufferSize + 1 }, "per.rpc.buffer.size"},
		{"zero termination wait", func(c *Config) { c.TerminationWait = 0 }, "channel.termination.waiting.time"},
		{"zero inbound message size", func(c *Config) { c.MaxInboundMessageSize = 0 }, "max.inbound.message.size"},
		{"zero inbound metadata size", func(c *Config) { c.MaxInboundMetadataSize = 0 }, "max.inbound.metadata.size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *contracts.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.option, cfgErr.Option)
			assert.False(t, contracts.IsRetryable(err))
		})
	}
}

func TestServiceConfig(t *testing.T) {
	unmarshal := func(t *testing.T, raw string) map[string]any {
		t.Helper()
		var sc map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &sc))
		methodConfigs := sc["methodConfig"].([]any)
		require.Len(t, methodConfigs, 1)
		return methodConfigs[0].(map[string]any)
	}

	t.Run("retry attempts produce a retry policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableRetry = true
		cfg.MaxRetryAttempts = 4
		cfg.MaxHedgedAttempts = 1

		raw, err := cfg.serviceConfig("EventService")
		require.NoError(t, err)

		mc := unmarshal(t, raw)
		names := mc["name"].([]any)
		assert.Equal(t, "EventService", names[0].(map[string]any)["service"])

		policy := mc["retryPolicy"].(map[string]any)
		assert.Equal(t, float64(4), policy["maxAttempts"])
		assert.Equal(t, "0.1s", policy["initialBackoff"])
		assert.Equal(t, "30s", policy["maxBackoff"])
		assert.Contains(t, policy["retryableStatusCodes"], "UNAVAILABLE")
		assert.NotContains(t, mc, "hedgingPolicy")
	})

	t.Run("hedged attempts alone produce a hedging policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableRetry = true
		cfg.MaxRetryAttempts = 1
		cfg.MaxHedgedAttempts = 3

		raw, err := cfg.serviceConfig("EventService")
		require.NoError(t, err)

		mc := unmarshal(t, raw)
		policy := mc["hedgingPolicy"].(map[string]any)
		assert.Equal(t, float64(3), policy["maxAttempts"])
		assert.NotContains(t, mc, "retryPolicy")
	})

	t.Run("retry wins when both caps are raised", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableRetry = true

		raw, err := cfg.serviceConfig("EventService")
		require.NoError(t, err)

		mc := unmarshal(t, raw)
		assert.Contains(t, mc, "retryPolicy")
		assert.NotContains(t, mc, "hedgingPolicy")
	})

	t.Run("single attempts on both policies yield no method config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableRetry = true
		cfg.MaxRetryAttempts = 1
		cfg.MaxHedgedAttempts = 1

		raw, err := cfg.serviceConfig("EventService")
		require.NoError(t, err)
		assert.Empty(t, raw)
	})
}

func TestDialOptions(t *testing.T) {
	target := Target{Address: "localhost:9763", Service: "EventService", Method: "process"}

	t.Run("default config translates without error", func(t *testing.T) {
		opts, err := DefaultConfig().dialOptions(target)

		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("keepalive and retry options translate without error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.KeepAliveTime = 30 * time.Second
		cfg.KeepAliveWithoutCalls = true
		cfg.EnableRetry = true

		opts, err := cfg.dialOptions(target)
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("secured target translates without error", func(t *testing.T) {
		secured := target
		secured.Secure = true

		opts, err := DefaultConfig().dialOptions(secured)
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.1s", formatDuration(100*time.Millisecond))
	assert.Equal(t, "1s", formatDuration(time.Second))
	assert.Equal(t, "30s", formatDuration(30*time.Second))
}
