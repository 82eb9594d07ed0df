package db

import (
	"context"
	"encoding/json"
	"time"

	"clipd/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const clipKeyPrefix = "clip:"

type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, timeout time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{
		client:  client,
		timeout: timeout,
	}, nil
}

// cachedClip mirrors domain.Clip with every field serialized, including the
// password hash, which the domain type hides from its public JSON form.
type cachedClip struct {
	ShortCode    string     `json:"short_code"`
	Content      string     `json:"content"`
	Title        string     `json:"title"`
	PasswordHash string     `json:"password_hash"`
	PostedAt     time.Time  `json:"posted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Hits         int64      `json:"hits"`
}

func (r *Redis) CacheClip(ctx context.Context, c *domain.Clip, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	payload, err := json.Marshal(cachedClip{
		ShortCode:    c.ShortCode.String(),
		Content:      c.Content,
		Title:        c.Title,
		PasswordHash: c.PasswordHash,
		PostedAt:     c.PostedAt,
		ExpiresAt:    c.ExpiresAt,
		Hits:         c.Hits,
	})
	if err != nil {
		return errors.Wrap(err, "marshal clip")
	}
	return r.client.Set(ctx, clipKeyPrefix+c.ShortCode.String(), payload, ttl).Err()
}

func (r *Redis) GetClip(ctx context.Context, code domain.ShortCode) (*domain.Clip, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	payload, err := r.client.Get(ctx, clipKeyPrefix+code.String()).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrClipNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	var cached cachedClip
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, errors.Wrap(err, "unmarshal clip")
	}
	return &domain.Clip{
		ShortCode:    domain.ShortCodeFromString(cached.ShortCode),
		Content:      cached.Content,
		Title:        cached.Title,
		PasswordHash: cached.PasswordHash,
		PostedAt:     cached.PostedAt,
		ExpiresAt:    cached.ExpiresAt,
		Hits:         cached.Hits,
	}, nil
}

func (r *Redis) Delete(ctx context.Context, code domain.ShortCode) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Del(ctx, clipKeyPrefix+code.String()).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
