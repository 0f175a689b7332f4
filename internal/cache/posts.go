package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const PostKeyPrefix = "post:%s"

// PostGenKeyPrefix holds a counter bumped on every write to a post.
const PostGenKeyPrefix = "post:%s:gen"

const PostTTL = 30 * time.Minute

// ErrMiss is returned by GetJSON when the key is absent.
var ErrMiss = errors.New("cache miss")

func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func PostGenKey(postID string) string {
	return fmt.Sprintf(PostGenKeyPrefix, postID)
}

// Generation returns the counter at genKey, 0 when unset.
func Generation(ctx context.Context, rdb *redis.Client, genKey string) (int64, error) {
	n, err := rdb.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// SetJSONAtGeneration stores v at key only while genKey still holds gen.
// It reports false when a writer moved the generation in the meantime.
func SetJSONAtGeneration(ctx context.Context, rdb *redis.Client, key, genKey string, gen int64, v any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}

	stale := false
	err = rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			stale = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !stale, nil
}

// BumpAndInvalidate moves genKey forward and drops keys in one transaction,
// so a fill that started before the write cannot land after it.
func BumpAndInvalidate(ctx context.Context, rdb *redis.Client, genKey string, ttl time.Duration, keys ...string) error {
	if rdb == nil {
		return nil
	}
	pipe := rdb.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, ttl)
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetJSON decodes the value stored at key into dst.
func GetJSON(ctx context.Context, rdb *redis.Client, key string, dst any) error {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// SetJSON stores v at key for ttl.
func SetJSON(ctx context.Context, rdb *redis.Client, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, raw, ttl).Err()
}
