// Package mirror keeps a best-effort copy of the current collection name and
// the collection list outside the bookmark store. The store's live folder
// listing is always authoritative; a mirror is only consulted to seed the
// last-known current name at startup.
package mirror

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Mirror is a key/value side channel for collection metadata.
type Mirror interface {
	SetCurrent(ctx context.Context, name string) error
	// Current returns the mirrored name, or ok=false when none is stored.
	Current(ctx context.Context) (name string, ok bool, err error)
	SetNames(ctx context.Context, names []string) error
	Names(ctx context.Context) ([]string, error)
}

// Nop discards writes and never has a value.
type Nop struct{}

func (Nop) SetCurrent(context.Context, string) error      { return nil }
func (Nop) Current(context.Context) (string, bool, error) { return "", false, nil }
func (Nop) SetNames(context.Context, []string) error      { return nil }
func (Nop) Names(context.Context) ([]string, error)       { return nil, nil }

// DefaultPrefix namespaces mirror keys.
const DefaultPrefix = "barswitch:"

// Redis mirrors metadata into Redis, one string key for the current name and
// one list key for the names.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) currentKey() string { return r.prefix + "current" }
func (r *Redis) namesKey() string   { return r.prefix + "names" }

// SetCurrent implements Mirror.
func (r *Redis) SetCurrent(ctx context.Context, name string) error {
	if err := r.client.Set(ctx, r.currentKey(), name, 0).Err(); err != nil {
		return fmt.Errorf("mirror: set current: %w", err)
	}
	return nil
}

// Current implements Mirror.
func (r *Redis) Current(ctx context.Context) (string, bool, error) {
	name, err := r.client.Get(ctx, r.currentKey()).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mirror: get current: %w", err)
	}
	return name, true, nil
}

// SetNames implements Mirror. The list is replaced atomically.
func (r *Redis) SetNames(ctx context.Context, names []string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.namesKey())
		if len(names) > 0 {
			args := make([]interface{}, len(names))
			for i, n := range names {
				args[i] = n
			}
			p.RPush(ctx, r.namesKey(), args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror: set names: %w", err)
	}
	return nil
}

// Names implements Mirror.
func (r *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.LRange(ctx, r.namesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror: get names: %w", err)
	}
	return names, nil
}

var (
	_ Mirror = Nop{}
	_ Mirror = (*Redis)(nil)
)
