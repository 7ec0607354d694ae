package cache

import (
	"fmt"
	"time"

	goredis "github.com/go-redis/redis"

	"github.com/atlasdatatech/mvt-server/internal/applog"
)

// Redis is the key/value CacheFacade backend, grounded on the original
// source's rediscache.rs: key "{name}:{z}:{x}:{y}", SET + conditional
// EXPIRE on write, KEYS pattern + DEL loop for layer invalidation.
type Redis struct {
	client *goredis.Client
}

func newRedis(addr string, db int) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func key(name string, z, x, y int) string {
	return fmt.Sprintf("%s:%d:%d:%d", name, z, x, y)
}

func (r *Redis) Get(name string, z, x, y int, _ time.Duration) ([]byte, bool, error) {
	data, err := r.client.Get(key(name, z, x, y)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Put(name string, z, x, y int, data []byte, maxAge time.Duration) error {
	if err := r.client.Set(key(name, z, x, y), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if maxAge > 0 {
		if err := r.client.Expire(key(name, z, x, y), maxAge).Err(); err != nil {
			return fmt.Errorf("redis expire: %w", err)
		}
	}
	return nil
}

func (r *Redis) DeleteLayer(name string) error {
	keys, err := r.client.Keys(name + ":*").Result()
	if err != nil {
		return fmt.Errorf("redis keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(keys...).Err(); err != nil {
		applog.Warnf("cache: redis del for layer %s: %v", name, err)
		return err
	}
	return nil
}

func (r *Redis) Exists(name string, z, x, y int) (bool, error) {
	n, err := r.client.Exists(key(name, z, x, y)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// DeleteAll purges every name in layerNames, continuing past individual
// failures and returning the first error seen.
func (r *Redis) DeleteAll(layerNames []string) error {
	var first error
	for _, name := range layerNames {
		if err := r.DeleteLayer(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Root returns "": a key/value backend has no filesystem root.
func (r *Redis) Root() string { return "" }

func logFallback(err error) {
	applog.Errorf("cache: redis unavailable, falling back to filesystem backend: %v", err)
}
