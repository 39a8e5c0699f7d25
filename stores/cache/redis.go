package cache

import (
	"car-management/core"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// carCache wraps a CarStore and keeps single-car lookups in redis.
// Read failures are logged and fall through to the wrapped store. Updates
// and deletes are refused when the entry cannot be invalidated first.
type carCache struct {
	core.CarStore
	client *redis.Client
	ttl    time.Duration
}

// NewCarCache returns a CarStore that serves FindOne from redis and
// invalidates entries on update and delete.
func NewCarCache(next core.CarStore, client *redis.Client, ttl time.Duration) *carCache {
	return &carCache{CarStore: next, client: client, ttl: ttl}
}

// NewClient connects to redis at address and checks the connection.
func NewClient(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func carKey(ownerID, id string) string {
	return fmt.Sprintf("car:%s:%s", ownerID, id)
}

// genKey counts the writes to a car. A fill only lands if the count did not
// move since the fill read the store.
func genKey(key string) string {
	return key + ":gen"
}

var errStaleFill = errors.New("car changed while filling cache")

func (c *carCache) generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *carCache) FindOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	key := carKey(ownerID, id)
	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id})

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var car core.Car
		if err := json.Unmarshal(data, &car); err == nil {
			log.Debug("Car served from cache")
			return &car, nil
		}
		log.Warn("Dropping undecodable cache entry")
		c.client.Del(ctx, key)
	case err != redis.Nil:
		log.WithError(err).Warn("Cache read failed")
	}

	gen, genErr := c.generation(ctx, key)
	car, err := c.CarStore.FindOne(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		c.fill(ctx, key, gen, car)
	}
	return car, nil
}

func (c *carCache) UpdateOne(ctx context.Context, id, ownerID string, update core.CarUpdate) (*core.Car, error) {
	key := carKey(ownerID, id)
	if err := c.invalidate(ctx, key); err != nil {
		return nil, core.AsStoreError(err, "failed to invalidate cached car")
	}
	car, err := c.CarStore.UpdateOne(ctx, id, ownerID, update)
	c.invalidateAfterWrite(ctx, key)
	if err != nil {
		return nil, err
	}
	return car, nil
}

func (c *carCache) DeleteOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	key := carKey(ownerID, id)
	if err := c.invalidate(ctx, key); err != nil {
		return nil, core.AsStoreError(err, "failed to invalidate cached car")
	}
	car, err := c.CarStore.DeleteOne(ctx, id, ownerID)
	c.invalidateAfterWrite(ctx, key)
	if err != nil {
		return nil, err
	}
	return car, nil
}

// fill caches car unless a write bumped the generation after gen was read.
func (c *carCache) fill(ctx context.Context, key string, gen int64, car *core.Car) {
	data, err := json.Marshal(car)
	if err != nil {
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey(key)).Int64()
		if err == redis.Nil {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey(key))

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		logrus.WithField("key", key).Debug("Skipped stale cache fill")
	default:
		logrus.WithField("key", key).WithError(err).Warn("Cache write failed")
	}
}

// invalidate bumps the generation and drops the entry in one transaction.
func (c *carCache) invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(key))
		pipe.Expire(ctx, genKey(key), 2*c.ttl)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func (c *carCache) invalidateAfterWrite(ctx context.Context, key string) {
	if err := c.invalidate(ctx, key); err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Cache invalidation failed")
	}
}
