package cache

import (
	"context"
	"encoding/json"
	"fmt"

	api "github.com/krisalay/omnifocus-mcp-cache/api"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
GetAs is Get with a typed result.

In-process stores hand back the value that was stored. Remote stores (redis) hand back the
JSON they persisted, as json.RawMessage; GetAs decodes it into T. A value that is neither T
nor decodable into T is reported as a miss.
*/
func GetAs[T any](ctx context.Context, c api.Cache, cat types.Category, key string) (T, bool) {
	v, ok := c.Get(ctx, cat, key)
	if !ok {
		var zero T
		return zero, false
	}
	out, err := as[T](v)
	return out, err == nil
}

/*
Fetch is the typed read-through path used by the tools: look up, load on miss, store on success.
cached reports whether the value came from the cache.
*/
func Fetch[T any](ctx context.Context, c api.Cache, cat types.Category, key string, load func(context.Context) (T, error)) (value T, cached bool, err error) {
	v, cached, err := c.GetOrLoad(ctx, cat, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	out, err := as[T](v)
	if err != nil {
		return out, false, fmt.Errorf("cache: %s/%s: %w", cat, key, err)
	}
	return out, cached, nil
}

func as[T any](v any) (T, error) {
	if out, ok := v.(T); ok {
		return out, nil
	}

	var out T
	var raw []byte
	switch r := v.(type) {
	case json.RawMessage:
		raw = r
	case []byte:
		raw = r
	default:
		return out, fmt.Errorf("cached value has type %T, want %T", v, out)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached value: %w", err)
	}
	return out, nil
}
