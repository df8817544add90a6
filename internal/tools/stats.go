package tools

import (
	"context"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

type statsReply struct {
	cache.Stats
	TTLSeconds map[types.Category]float64 `json:"ttl_seconds"`
	Resources  preload.State              `json:"resources,omitempty"`
}

func (t *Toolset) cacheStatsTool() Tool {
	return Tool{
		Definition: Definition{
			Name:        "cache_stats",
			Description: "Cache hit/miss/eviction/invalidation counters per category and the resource snapshot state.",
			InputSchema: schema(map[string]any{}),
		},
		Handler: func(context.Context, Args) (any, error) {
			reply := statsReply{TTLSeconds: map[types.Category]float64{}}
			if t.Counters != nil {
				reply.Stats = t.Counters.Snapshot()
			}
			for _, cat := range types.BuiltinCategories() {
				reply.TTLSeconds[cat] = t.Cache.TTL(cat).Seconds()
			}
			if t.Preloader != nil {
				reply.Resources = t.Preloader.State()
			}
			return reply, nil
		},
	}
}
