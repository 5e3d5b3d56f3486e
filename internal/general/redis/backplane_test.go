package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requires FLEET_TEST_REDIS_URL, e.g. redis://localhost:6379/15
func TestPublishSubscribe(t *testing.T) {
	url := os.Getenv("FLEET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FLEET_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := logger.Discard()
	cfg := config.RedisConfig{URL: url, Channel: "fleet:realtime:test:" + time.Now().Format("150405.000")}
	bp, err := Connect(ctx, cfg, log)
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	defer bp.Close()

	got := make(chan contracts.Broadcast, 1)
	subCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- bp.Subscribe(subCtx, func(_ context.Context, b contracts.Broadcast) { got <- b })
	}()

	want := contracts.Broadcast{Origin: "node-a", Group: "dispatch", Frame: json.RawMessage(`{"type":"x"}`)}
	assert.Eventually(t, func() bool {
		if bp.Publish(ctx, want) != nil {
			return false
		}
		select {
		case b := <-got:
			return b.Origin == "node-a" && b.Group == "dispatch"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	stop()
	assert.NoError(t, <-done)
}

func TestConnectRejectsBadURL(t *testing.T) {
	log := logger.Discard()
	_, err := Connect(context.Background(), config.RedisConfig{URL: "http://nope"}, log)
	assert.Error(t, err)
}

func TestSubscribeRetriesUntilCancelled(t *testing.T) {
	// nothing listens on this port, so every attempt fails fast
	bp := NewBackplane(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond}), "fleet:test", logger.Discard())
	defer bp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bp.Subscribe(ctx, func(context.Context, contracts.Broadcast) {}) }()

	select {
	case err := <-done:
		t.Fatalf("Subscribe returned early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not stop after cancel")
	}
}

func TestDecodeBroadcast(t *testing.T) {
	b, err := decodeBroadcast(`{"origin":"n1","kind":"dispatch","group":"dispatch","frame":{"type":"x"}}`)
	require.NoError(t, err)
	assert.Equal(t, "dispatch", b.Kind)

	_, err = decodeBroadcast(`{"origin":"n1","group":"dispatch"}`)
	assert.Error(t, err)
	_, err = decodeBroadcast(`nope`)
	assert.Error(t, err)
}
