package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ciddy0/co2ounter/configs"
	"github.com/ciddy0/co2ounter/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

const statsUpdatesChannel = "stats_updates"

// CacheManager layers a local in-process cache over Redis. Redis being down
// degrades to local-only caching; it never fails requests.
type CacheManager struct {
	redisClient *redis.Client
	localCache  *cache.Cache
	pubSub      *redis.PubSub
	ctx         context.Context
	mu          sync.RWMutex

	subMu       sync.Mutex
	subscribers []chan StatsUpdate
}

// StatsUpdate is published after every successful counter increment so
// display surfaces can refresh without polling.
type StatsUpdate struct {
	Identity  string `json:"identity"`
	Timestamp int64  `json:"timestamp"`
}

var (
	instance *CacheManager
	once     sync.Once
)

func GetCacheManager() *CacheManager {
	once.Do(func() {
		instance = &CacheManager{
			ctx:        context.Background(),
			localCache: cache.New(5*time.Minute, 10*time.Minute),
		}
		instance.initialize()
	})
	return instance
}

func (cm *CacheManager) initialize() {
	opts, err := redis.ParseURL(configs.AppConfig.RedisURL)
	if err != nil {
		opts = &redis.Options{
			Addr: configs.AppConfig.RedisURL,
		}
	}

	cm.redisClient = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
	defer cancel()

	if err := cm.redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Warn("Redis connection failed, using local cache only: ", err)
		cm.redisClient = nil
	} else {
		logger.Log.Info("Redis connection established successfully")

		cm.pubSub = cm.redisClient.Subscribe(cm.ctx, statsUpdatesChannel)
		go cm.listenForUpdates()
	}
}

func (cm *CacheManager) listenForUpdates() {
	if cm.pubSub == nil {
		return
	}

	ch := cm.pubSub.Channel()
	for msg := range ch {
		cm.handleUpdateMessage(msg.Payload)
	}
}

func (cm *CacheManager) handleUpdateMessage(payload string) {
	var update StatsUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		logger.Log.Warn("Failed to parse stats update message: ", err)
		return
	}

	// Counters changed: the cached views of them are stale.
	cm.Delete(StatsKey(update.Identity))
	cm.Delete(LeaderboardKey)
	cm.Delete(HistoryKey(update.Identity))

	cm.subMu.Lock()
	for _, sub := range cm.subscribers {
		select {
		case sub <- update:
		default:
			// Slow subscriber, drop rather than block invalidation.
		}
	}
	cm.subMu.Unlock()
}

// SubscribeStatsUpdates returns a channel receiving every published stats
// update. Used by the WebSocket hub to push STATS_UPDATED frames.
func (cm *CacheManager) SubscribeStatsUpdates() <-chan StatsUpdate {
	ch := make(chan StatsUpdate, 16)
	cm.subMu.Lock()
	cm.subscribers = append(cm.subscribers, ch)
	cm.subMu.Unlock()
	return ch
}

// Cache key layout.
const LeaderboardKey = "leaderboard"

func StatsKey(identity string) string   { return fmt.Sprintf("stats:%s", identity) }
func HistoryKey(identity string) string { return fmt.Sprintf("history:%s", identity) }

func (cm *CacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Set(key, value, ttl)

	if cm.redisClient != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()

		return cm.redisClient.Set(ctx, key, data, ttl).Err()
	}

	return nil
}

func (cm *CacheManager) Get(key string, target interface{}) (bool, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if val, found := cm.localCache.Get(key); found {
		data, err := json.Marshal(val)
		if err != nil {
			return false, err
		}
		return true, json.Unmarshal(data, target)
	}

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()

		data, err := cm.redisClient.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		} else if err != nil {
			return false, err
		}

		// RawMessage round-trips through the local hit path's re-marshal;
		// raw bytes would come back base64-encoded and fail to decode.
		cm.localCache.Set(key, json.RawMessage(data), 5*time.Minute)

		return true, json.Unmarshal(data, target)
	}

	return false, nil
}

func (cm *CacheManager) Delete(key string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.localCache.Delete(key)

	if cm.redisClient != nil {
		ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
		defer cancel()
		return cm.redisClient.Del(ctx, key).Err()
	}

	return nil
}

// PublishStatsUpdate fans a counter change out to every process subscribed
// to the channel, including this one.
func (cm *CacheManager) PublishStatsUpdate(identity string) {
	update := StatsUpdate{
		Identity:  identity,
		Timestamp: time.Now().Unix(),
	}

	if cm.redisClient == nil {
		// No Redis: fan out locally so WebSocket push still works.
		data, _ := json.Marshal(update)
		cm.handleUpdateMessage(string(data))
		return
	}

	data, _ := json.Marshal(update)
	ctx, cancel := context.WithTimeout(cm.ctx, 5*time.Second)
	defer cancel()

	cm.redisClient.Publish(ctx, statsUpdatesChannel, data)
}

func (cm *CacheManager) IsAvailable() bool {
	return cm.redisClient != nil
}
