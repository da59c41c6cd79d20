// Package cache stores resolved availability in Redis.
//
// Every professional has a generation counter. Get reads under the current
// generation and reports it; Set writes under the generation the caller's Get
// saw. Invalidate bumps the counter, so entries of an older generation,
// including values resolved before an invalidation but stored after it, are
// never read again and simply expire.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/diegoabad/front-consul-sub001/internal/platform/db"
)

const defaultTTL = 10 * time.Minute

type Availability struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewAvailability(client *redis.Client, ttl time.Duration) *Availability {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Availability{client: client, prefix: "agenda:avail", ttl: ttl}
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (a *Availability) scope(ctx context.Context, professionalID uuid.UUID) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "_"
	}
	return a.prefix + ":" + tenant + ":" + professionalID.String()
}

func (a *Availability) generation(ctx context.Context, scope string) (int64, error) {
	raw, err := a.client.Get(ctx, scope+":gen").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (a *Availability) entryKey(scope string, gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", scope, gen, key)
}

func (a *Availability) Get(ctx context.Context, professionalID uuid.UUID, key string) ([]byte, int64, bool, error) {
	scope := a.scope(ctx, professionalID)
	gen, err := a.generation(ctx, scope)
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := a.client.Get(ctx, a.entryKey(scope, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	return raw, gen, true, nil
}

func (a *Availability) Set(ctx context.Context, professionalID uuid.UUID, gen int64, key string, value []byte) error {
	return a.client.Set(ctx, a.entryKey(a.scope(ctx, professionalID), gen, key), value, a.ttl).Err()
}

func (a *Availability) Invalidate(ctx context.Context, professionalID uuid.UUID) error {
	return a.client.Incr(ctx, a.scope(ctx, professionalID)+":gen").Err()
}

func (a *Availability) Name() string { return "redis" }

func (a *Availability) Ping(ctx context.Context) error { return a.client.Ping(ctx).Err() }
