package feeds

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/burstbot/types"
)

func TestNewRedisSignalsBadURL(t *testing.T) {
	t.Parallel()
	_, err := NewRedisSignals("http://not-redis", "signals", "BTCUSDT")
	assert.Error(t, err)
}

// Needs a live server: REDIS_TEST_URL=redis://localhost:6379/15
func TestRedisSignalsPubSub(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	sub, err := NewRedisSignals(url, "burstbot:test", "BTCUSDT")
	require.NoError(t, err)
	pub, err := NewRedisSignals(url, "burstbot:test", "BTCUSDT")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	// publish until the subscriber is attached
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case sig := <-sub.Signals():
			assert.Equal(t, types.Down, sig.Direction)
			return
		case <-ticker.C:
			require.NoError(t, pub.Publish(ctx, decimal.NewFromInt(-2)))
		case <-ctx.Done():
			t.Fatal("no signal received")
		}
	}
}
