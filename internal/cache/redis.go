package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-social/internal/config"
)

const (
	cardSeqKey         = "cards:seq"
	chatActivitySeqKey = "chats:activity:seq"
	badWordsKey        = "moderation:badwords"
	unviewedTTL        = time.Hour
	notifyChannel      = "notifications:"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// NextCardSeq allocates the next global card sequence number. Sequences are
// strictly increasing and never reused, so they are a stable sort key.
func (c *RedisCache) NextCardSeq(ctx context.Context) (int64, error) {
	return c.Client.Incr(ctx, cardSeqKey).Result()
}

// KeyForUnviewedChats generates the Redis key holding the last published
// chats-with-unviewed-messages count for a user.
func (c *RedisCache) KeyForUnviewedChats(userID string) string {
	return fmt.Sprintf("chats:unviewed:%s", userID)
}

// SwapUnviewedChats stores count and returns the previous cached value.
// known is false on a cache miss.
func (c *RedisCache) SwapUnviewedChats(ctx context.Context, userID string, count int64) (prev int64, known bool, err error) {
	key := c.KeyForUnviewedChats(userID)
	val, err := c.Client.SetArgs(ctx, key, count, redis.SetArgs{Get: true, TTL: unviewedTTL}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	prev, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return prev, true, nil
}

// GetUnviewedChats returns the cached count, refreshing its TTL on access.
func (c *RedisCache) GetUnviewedChats(ctx context.Context, userID string) (int64, bool, error) {
	key := c.KeyForUnviewedChats(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	_ = c.Client.Expire(ctx, key, unviewedTTL).Err()
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// BadWords returns the moderation word list maintained in Redis.
func (c *RedisCache) BadWords(ctx context.Context) ([]string, error) {
	return c.Client.SMembers(ctx, badWordsKey).Result()
}

// AddBadWords adds words to the moderation list.
func (c *RedisCache) AddBadWords(ctx context.Context, words ...string) error {
	if len(words) == 0 {
		return nil
	}
	members := make([]interface{}, len(words))
	for i, w := range words {
		members[i] = w
	}
	return c.Client.SAdd(ctx, badWordsKey, members...).Err()
}

// NotificationChannel is the pub/sub channel carrying a user's events.
func NotificationChannel(userID string) string {
	return notifyChannel + userID
}

// Publish pushes a payload onto a user's notification channel.
func (c *RedisCache) Publish(ctx context.Context, userID string, payload []byte) error {
	return c.Client.Publish(ctx, NotificationChannel(userID), payload).Err()
}

// Subscribe opens a pub/sub subscription on a user's channel. The first
// receive confirms the subscription so no event published afterwards is lost.
func (c *RedisCache) Subscribe(ctx context.Context, userID string) (*redis.PubSub, error) {
	ps := c.Client.Subscribe(ctx, NotificationChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// NextActivitySeq allocates the next chat activity sequence. Chat lists sort
// on it so ordering survives equal timestamps.
func (c *RedisCache) NextActivitySeq(ctx context.Context) (int64, error) {
	return c.Client.Incr(ctx, chatActivitySeqKey).Result()
}

// AnyBadWord reports whether any of tokens is in the moderation set.
func (c *RedisCache) AnyBadWord(ctx context.Context, tokens []string) (bool, error) {
	if len(tokens) == 0 {
		return false, nil
	}
	members := make([]interface{}, len(tokens))
	for i, t := range tokens {
		members[i] = t
	}
	hits, err := c.Client.SMIsMember(ctx, badWordsKey, members...).Result()
	if err != nil {
		return false, err
	}
	for _, h := range hits {
		if h {
			return true, nil
		}
	}
	return false, nil
}
