// Package cache is the in-process cache shared by the payment gateway
// (access tokens, IPN ids) and the signup wizard (session state).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

var ErrMiss = errors.New("cache miss")

type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New builds a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/10, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	return val, ok, nil
}

// Set stores value for ttl and waits for the write to become visible, so a
// Get straight after Set observes it. A zero ttl never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return errors.New("cache: value rejected")
	}
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

func (c *Cache) Close() { c.c.Close() }

func (c *Cache) GetJSON(ctx context.Context, key string, dst any) error {
	b, ok, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(b, dst)
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
