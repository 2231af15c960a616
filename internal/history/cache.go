package history

import (
	"context"
	"encoding/json"
	"fmt"
)

// LocalCache is the fast, capacity-bounded device store. Values are opaque strings.
type LocalCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Namespaced prefixes every key, giving each device its own slice of a shared cache.
func Namespaced(cache LocalCache, prefix string) LocalCache {
	return namespaced{cache: cache, prefix: prefix}
}

type namespaced struct {
	cache  LocalCache
	prefix string
}

func (n namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.cache.Get(ctx, n.prefix+":"+key)
}

func (n namespaced) Set(ctx context.Context, key, value string) error {
	return n.cache.Set(ctx, n.prefix+":"+key, value)
}

// readJSON decodes the value at key into dst. A missing key leaves dst untouched.
func readJSON(ctx context.Context, cache LocalCache, key string, dst any) (bool, error) {
	raw, ok, err := cache.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func writeJSON(ctx context.Context, cache LocalCache, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return cache.Set(ctx, key, string(raw))
}
