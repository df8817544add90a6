// Package invalidation maps successful writes to the cache categories they make stale.
package invalidation

import (
	"context"
	"io"
	"log"
	"sort"

	api "github.com/krisalay/omnifocus-mcp-cache/api"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

// Entity is the kind of object a write touched.
type Entity string

const (
	Task    Entity = "task"
	Project Entity = "project"
	Tag     Entity = "tag"

	// Unknown is any write whose effects cannot be mapped; it invalidates everything.
	Unknown Entity = "unknown"
)

// Policy maps an entity to the categories a write to it invalidates.
type Policy map[Entity][]types.Category

/*
DefaultPolicy:

	task    → tasks, analytics, today
	project → projects, tasks, analytics, today
	tag     → tags, tasks, analytics, today

Tag usage statistics and project task counts live in analytics, so every task write drops them.
*/
func DefaultPolicy() Policy {
	return Policy{
		Task:    {types.CategoryTasks, types.CategoryAnalytics, types.CategoryToday},
		Project: {types.CategoryProjects, types.CategoryTasks, types.CategoryAnalytics, types.CategoryToday},
		Tag:     {types.CategoryTags, types.CategoryTasks, types.CategoryAnalytics, types.CategoryToday},
	}
}

// Resources is the part of the preloader the coordinator needs.
type Resources interface {
	Invalidate()
}

type Coordinator struct {
	cache     api.Cache
	resources Resources
	policy    Policy
	logger    *log.Logger
}

// New builds a Coordinator. resources may be nil when no preloader runs.
func New(c api.Cache, resources Resources, policy Policy, logger *log.Logger) *Coordinator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{cache: c, resources: resources, policy: policy, logger: logger}
}

/*
Categories resolves the categories invalidated by a write touching the given entities.
all is true when an entity has no policy entry.
*/
func (co *Coordinator) Categories(entities ...Entity) (cats []types.Category, all bool) {
	seen := make(map[types.Category]bool)
	for _, e := range entities {
		mapped, ok := co.policy[e]
		if !ok {
			return nil, true
		}
		for _, c := range mapped {
			if !seen[c] {
				seen[c] = true
				cats = append(cats, c)
			}
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats, false
}

/*
AfterWrite runs after a write that may have changed data, before its response is produced.
Whenever tags or projects are touched the resource snapshot is dropped as well.
*/
func (co *Coordinator) AfterWrite(ctx context.Context, entities ...Entity) {
	if len(entities) == 0 {
		entities = []Entity{Unknown}
	}

	cats, all := co.Categories(entities...)
	if all {
		co.InvalidateAll(ctx)
		return
	}

	resources := false
	for _, c := range cats {
		co.cache.Invalidate(ctx, c)
		if c == types.CategoryTags || c == types.CategoryProjects {
			resources = true
		}
	}
	if resources && co.resources != nil {
		co.resources.Invalidate()
	}
	co.logger.Printf("write to %v invalidated %v (resources: %v)", entities, cats, resources)
}

// InvalidateAll drops every category and the resource snapshot.
func (co *Coordinator) InvalidateAll(ctx context.Context) {
	co.cache.InvalidateAll(ctx)
	if co.resources != nil {
		co.resources.Invalidate()
	}
	co.logger.Printf("invalidated all categories")
}
