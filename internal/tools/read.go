package tools

import (
	"context"
	"time"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	api "github.com/krisalay/omnifocus-mcp-cache/api"
	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/krisalay/omnifocus-mcp-cache/key"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

type taskListResponse struct {
	omnifocus.TaskList
	FromCache bool `json:"from_cache"`
}

type agendaResponse struct {
	omnifocus.Agenda
	FromCache bool `json:"from_cache"`
}

type projectListResponse struct {
	omnifocus.ProjectList
	FromCache bool `json:"from_cache"`
}

type tagListResponse struct {
	omnifocus.TagList
	FromCache bool `json:"from_cache"`
}

type statsResponse struct {
	omnifocus.ProductivityStats
	FromCache bool `json:"from_cache"`
}

func (t *Toolset) readTools() []Tool {
	return []Tool{
		{
			Definition: Definition{
				Name:        "list_tasks",
				Description: "List tasks with optional filters (completion, flag, project, tags, text, due range).",
				InputSchema: schema(map[string]any{
					"completed": prop("boolean", "Only completed (true) or incomplete (false) tasks"),
					"flagged":   prop("boolean", "Only flagged tasks"),
					"available": prop("boolean", "Only available (unblocked, incomplete) tasks"),
					"projectId": prop("string", "Project ID, e.g. \"az5Ieo4ip7K\""),
					"tags":      stringArray("Tasks must carry every one of these tags"),
					"search":    prop("string", "Text to find in name or note"),
					"dueBefore": prop("string", "RFC 3339 or YYYY-MM-DD"),
					"dueAfter":  prop("string", "RFC 3339 or YYYY-MM-DD"),
					"limit":     prop("number", "Maximum number of tasks (default 100)"),
				}),
			},
			Handler: t.listTasks,
		},
		{
			Definition: Definition{
				Name:        "todays_agenda",
				Description: "Tasks overdue or due today, optionally with flagged tasks.",
				InputSchema: schema(map[string]any{
					"includeFlagged": prop("boolean", "Include flagged tasks (default true)"),
				}),
			},
			Handler: t.todaysAgenda,
		},
		{
			Definition: Definition{
				Name:        "list_projects",
				Description: "List projects. Task counts are optional (expensive on large databases).",
				InputSchema: schema(map[string]any{
					"status":           stringArray("Statuses to include: active, onHold, done, dropped"),
					"flagged":          prop("boolean", "Only flagged projects"),
					"search":           prop("string", "Text to find in the project name"),
					"includeTaskCount": prop("boolean", "Count tasks per project (default false)"),
				}),
			},
			Handler: t.listProjects,
		},
		{
			Definition: Definition{
				Name:        "list_tags",
				Description: "List all tags/contexts. Usage statistics are optional (expensive on large databases).",
				InputSchema: schema(map[string]any{
					"sortBy":            enum("How to sort the tags", "name", "usage", "tasks"),
					"includeEmpty":      prop("boolean", "Include tags with no tasks (only with usage statistics)"),
					"includeUsageStats": prop("boolean", "Calculate usage statistics (default false)"),
				}),
			},
			Handler: t.listTags,
		},
		{
			Definition: Definition{
				Name:        "productivity_stats",
				Description: "Completed, created and overdue task counts for a period.",
				InputSchema: schema(map[string]any{
					"period": enum("Period to analyse (default week)", "day", "week", "month", "year"),
				}),
			},
			Handler: t.productivityStats,
		},
	}
}

const defaultTaskLimit = 100

func (t *Toolset) listTasks(ctx context.Context, args Args) (any, error) {
	dueBefore, err := args.Time("dueBefore")
	if err != nil {
		return nil, err
	}
	dueAfter, err := args.Time("dueAfter")
	if err != nil {
		return nil, err
	}

	f := omnifocus.TaskFilter{
		Completed: args.OptBool("completed"),
		Flagged:   args.OptBool("flagged"),
		Available: args.OptBool("available"),
		ProjectID: args.String("projectId", ""),
		Tags:      args.Strings("tags"),
		Search:    args.String("search", ""),
		DueBefore: dueBefore,
		DueAfter:  dueAfter,
		Limit:     args.Int("limit", defaultTaskLimit),
	}

	k := key.New("list_tasks").
		With("completed", f.Completed).
		With("flagged", f.Flagged).
		With("available", f.Available).
		With("projectId", f.ProjectID).
		WithSet("tags", f.Tags).
		With("search", f.Search).
		With("dueBefore", f.DueBefore).
		With("dueAfter", f.DueAfter).
		With("limit", f.Limit)

	v, cached, err := cache.Fetch(ctx, t.Cache, types.CategoryTasks, k.String(), func(ctx context.Context) (omnifocus.TaskList, error) {
		return t.Client.ListTasks(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return taskListResponse{TaskList: v, FromCache: cached}, nil
}

func (t *Toolset) todaysAgenda(ctx context.Context, args Args) (any, error) {
	// The local date is part of the key: yesterday's agenda must never answer today.
	date := t.Now().In(time.Local).Format(time.DateOnly)
	includeFlagged := args.Bool("includeFlagged", true)

	k := key.New("todays_agenda").
		With("date", date).
		With("includeFlagged", includeFlagged)

	v, cached, err := cache.Fetch(ctx, t.Cache, types.CategoryToday, k.String(), func(ctx context.Context) (omnifocus.Agenda, error) {
		return t.Client.TodaysAgenda(ctx, date, includeFlagged)
	})
	if err != nil {
		return nil, err
	}
	return agendaResponse{Agenda: v, FromCache: cached}, nil
}

func projectsKey(f omnifocus.ProjectFilter) string {
	return key.New("list_projects").
		WithSet("status", f.Status).
		With("flagged", f.Flagged).
		With("search", f.Search).
		With("includeTaskCount", f.IncludeTaskCount).
		String()
}

// projectsCategory keeps count-carrying listings in analytics, which every task write drops.
func projectsCategory(f omnifocus.ProjectFilter) types.Category {
	if f.IncludeTaskCount {
		return types.CategoryAnalytics
	}
	return types.CategoryProjects
}

func fetchProjects(ctx context.Context, c api.Cache, client *omnifocus.Client, f omnifocus.ProjectFilter) (omnifocus.ProjectList, bool, error) {
	return cache.Fetch(ctx, c, projectsCategory(f), projectsKey(f), func(ctx context.Context) (omnifocus.ProjectList, error) {
		return client.ListProjects(ctx, f)
	})
}

func (t *Toolset) listProjects(ctx context.Context, args Args) (any, error) {
	f := omnifocus.ProjectFilter{
		Status:           args.Strings("status"),
		Flagged:          args.OptBool("flagged"),
		Search:           args.String("search", ""),
		IncludeTaskCount: args.Bool("includeTaskCount", false),
	}
	v, cached, err := fetchProjects(ctx, t.Cache, t.Client, f)
	if err != nil {
		return nil, err
	}
	return projectListResponse{ProjectList: v, FromCache: cached}, nil
}

func tagsKey(o omnifocus.TagOptions) string {
	return key.New("list_tags").
		With("sortBy", o.SortBy).
		With("includeEmpty", o.IncludeEmpty).
		With("includeUsageStats", o.IncludeUsageStats).
		String()
}

// tagsCategory keeps usage statistics in analytics, which every task write drops.
func tagsCategory(o omnifocus.TagOptions) types.Category {
	if o.IncludeUsageStats {
		return types.CategoryAnalytics
	}
	return types.CategoryTags
}

func fetchTags(ctx context.Context, c api.Cache, client *omnifocus.Client, o omnifocus.TagOptions) (omnifocus.TagList, bool, error) {
	return cache.Fetch(ctx, c, tagsCategory(o), tagsKey(o), func(ctx context.Context) (omnifocus.TagList, error) {
		return client.ListTags(ctx, o)
	})
}

func (t *Toolset) listTags(ctx context.Context, args Args) (any, error) {
	o := omnifocus.TagOptions{
		SortBy:            args.String("sortBy", "name"),
		IncludeEmpty:      args.Bool("includeEmpty", true),
		IncludeUsageStats: args.Bool("includeUsageStats", false),
	}
	v, cached, err := fetchTags(ctx, t.Cache, t.Client, o)
	if err != nil {
		return nil, err
	}
	return tagListResponse{TagList: v, FromCache: cached}, nil
}

// periodStart returns the start of the reporting period ending now.
func periodStart(now time.Time, period string) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case "day":
		return day
	case "month":
		return day.AddDate(0, -1, 0)
	case "year":
		return day.AddDate(-1, 0, 0)
	default:
		return day.AddDate(0, 0, -7)
	}
}

func (t *Toolset) productivityStats(ctx context.Context, args Args) (any, error) {
	period := args.String("period", "week")
	switch period {
	case "day", "week", "month", "year":
	default:
		period = "week"
	}
	since := periodStart(t.Now().In(time.Local), period)

	k := key.New("productivity_stats").
		With("period", period).
		With("since", since.Format(time.DateOnly))

	v, cached, err := cache.Fetch(ctx, t.Cache, types.CategoryAnalytics, k.String(), func(ctx context.Context) (omnifocus.ProductivityStats, error) {
		return t.Client.ProductivityStats(ctx, period, since)
	})
	if err != nil {
		return nil, err
	}
	return statsResponse{ProductivityStats: v, FromCache: cached}, nil
}

// TagsResource is the preloader fetch for omnifocus://tags: every tag, cheap variant.
func TagsResource(c api.Cache, client *omnifocus.Client) preload.Fetch {
	return func(ctx context.Context) (any, error) {
		v, _, err := fetchTags(ctx, c, client, omnifocus.TagOptions{SortBy: "name", IncludeEmpty: true})
		return v, err
	}
}

// ProjectsResource is the preloader fetch for omnifocus://projects: active projects, no counts.
func ProjectsResource(c api.Cache, client *omnifocus.Client) preload.Fetch {
	return func(ctx context.Context) (any, error) {
		v, _, err := fetchProjects(ctx, c, client, omnifocus.ProjectFilter{Status: []string{"active"}})
		return v, err
	}
}
