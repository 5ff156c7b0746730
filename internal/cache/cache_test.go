package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis runs one Redis container for the calling test.
func startRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache(endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.Ping(ctx))
	return rc
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := startRedis(t)
	ctx := context.Background()

	t.Run("task snapshot round trip", func(t *testing.T) {
		key := cache.TaskKey(uuid.New())
		snapshot := []byte(`{"task_id":"x","status":"success","progress":100}`)

		require.NoError(t, rc.Set(ctx, key, snapshot, time.Minute))

		got, found, err := rc.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, string(snapshot), string(got))
	})

	t.Run("missing key", func(t *testing.T) {
		got, found, err := rc.Get(ctx, cache.TaskKey(uuid.New()))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("in-flight marker lifecycle", func(t *testing.T) {
		key := cache.InFlightKey(uuid.New())

		found, err := rc.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, rc.Set(ctx, key, []byte("1"), time.Minute))
		found, err = rc.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)

		require.NoError(t, rc.Delete(ctx, key))
		found, err = rc.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)

		// Deleting twice is fine.
		assert.NoError(t, rc.Delete(ctx, key))
	})

	t.Run("rate limit window counts", func(t *testing.T) {
		key := cache.RateLimitKey("198.51.100." + uuid.NewString()[:4])
		for want := int64(1); want <= 3; want++ {
			got, err := rc.IncrWithExpiry(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestRedisCache_Expiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := startRedis(t)
	ctx := context.Background()

	marker := cache.InFlightKey(uuid.New())
	window := cache.RateLimitKey("192.0.2.10")

	require.NoError(t, rc.Set(ctx, marker, []byte("1"), time.Second))
	_, err := rc.IncrWithExpiry(ctx, window, time.Second)
	require.NoError(t, err)

	// A worker that stops heartbeating loses its marker; a new window restarts at one.
	time.Sleep(1500 * time.Millisecond)

	found, err := rc.Exists(ctx, marker)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := rc.IncrWithExpiry(ctx, window, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// --- Cache Key Builders ---

func TestTaskKey(t *testing.T) {
	taskID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "task:22222222-2222-2222-2222-222222222222", cache.TaskKey(taskID))
}

func TestInFlightKey(t *testing.T) {
	taskID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "task:22222222-2222-2222-2222-222222222222:inflight", cache.InFlightKey(taskID))
}

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("203.0.113.7")
	assert.Equal(t, "ratelimit:203.0.113.7", key)
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	taskID := uuid.New()

	keys := map[string]bool{
		cache.TaskKey(taskID):          true,
		cache.InFlightKey(taskID):      true,
		cache.RateLimitKey("10.0.0.1"): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
