package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const bumpChannel = "ledger.balances.bump"

// BalanceCache serves account snapshots between postings.
type BalanceCache interface {
	Fetch(ctx context.Context, companyID, accountID uuid.UUID, load func(context.Context) (Account, error)) (Account, error)
	Bump(ctx context.Context, companyID uuid.UUID) error
}

// RedisBalanceCache caches account snapshots under a per-company version. A
// posting bumps the version, which orphans every cached snapshot of the company.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewBalanceCache instantiates the cache helper.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

func versionKey(companyID uuid.UUID) string {
	return "ledger:balances:version:" + companyID.String()
}

// Version returns the current cache version for the company, initialising when missing.
func (c *RedisBalanceCache) Version(ctx context.Context, companyID uuid.UUID) (int64, error) {
	key := versionKey(companyID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch loads a cached snapshot or populates it using load. Concurrent misses
// for the same key share one load.
func (c *RedisBalanceCache) Fetch(ctx context.Context, companyID, accountID uuid.UUID, load func(context.Context) (Account, error)) (Account, error) {
	if load == nil {
		return Account{}, errors.New("accounting: cache loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx)
	}
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return Account{}, err
	}
	key := fmt.Sprintf("ledger:balances:%s:%s:%d", companyID, accountID, ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var acc Account
		if err := json.Unmarshal(payload, &acc); err != nil {
			return Account{}, err
		}
		return acc, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Account{}, err
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		acc, err := load(ctx)
		if err != nil {
			return Account{}, err
		}
		raw, err := json.Marshal(acc)
		if err != nil {
			return Account{}, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return Account{}, err
		}
		return acc, nil
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

// Bump invalidates the company's snapshots and publishes the new version.
func (c *RedisBalanceCache) Bump(ctx context.Context, companyID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(companyID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, companyID.String()+":"+strconv.FormatInt(ver, 10)).Err()
}
