package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores the credential under "<prefix><origin>". When the token is a JWT
// the key expires together with it.
type Redis struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

// NewRedis constructs a Redis-backed store.
func NewRedis(rdb redis.Cmdable, prefix, origin string) *Redis {
	if prefix == "" {
		prefix = "lms:token:"
	}
	return &Redis{rdb: rdb, key: prefix + origin, now: time.Now}
}

func (r *Redis) Get(ctx context.Context) (string, error) {
	v, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, token string) error {
	var ttl time.Duration
	if exp, ok := ExpiresAt(token); ok {
		if d := exp.Sub(r.now()); d > 0 {
			ttl = d
		}
	}
	return r.rdb.Set(ctx, r.key, token, ttl).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
