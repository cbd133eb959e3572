package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGetRoundTrip(t *testing.T) {
	cm := GetCacheManager()
	cm.Delete("test:roundtrip")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, cm.Set("test:roundtrip", payload{Name: "dee", Count: 3}, time.Minute))

	var got payload
	found, err := cm.Get("test:roundtrip", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "dee", Count: 3}, got)
}

func TestCacheGetMiss(t *testing.T) {
	cm := GetCacheManager()
	cm.Delete("test:missing")

	var got map[string]interface{}
	found, err := cm.Get("test:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheLocalRawJSONDecodes(t *testing.T) {
	// A Redis hit seeds the local cache with the raw JSON payload; the next
	// local hit must decode it into the target, not treat it as a miss.
	cm := GetCacheManager()
	cm.Delete("test:raw")

	cm.localCache.Set("test:raw", json.RawMessage(`{"name":"dee","count":7}`), time.Minute)

	var got struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	found, err := cm.Get("test:raw", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dee", got.Name)
	assert.Equal(t, 7, got.Count)
}

func TestPublishStatsUpdateReachesSubscribers(t *testing.T) {
	cm := GetCacheManager()
	updates := cm.SubscribeStatsUpdates()

	cm.PublishStatsUpdate("cache-user-1")

	if cm.IsAvailable() {
		t.Skip("pub/sub delivery order depends on the Redis broker")
	}

	select {
	case update := <-updates:
		assert.Equal(t, "cache-user-1", update.Identity)
	case <-time.After(time.Second):
		t.Fatal("no stats update received")
	}
}
