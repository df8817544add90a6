package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krisalay/omnifocus-mcp-cache/bulk"
	"github.com/krisalay/omnifocus-mcp-cache/internal/export"
	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
)

// Exports bypass the cache and always read fresh.

type exportResponse struct {
	Format string `json:"format"`
	Count  int    `json:"count"`
	File   string `json:"file,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func (t *Toolset) exportTools() []Tool {
	return []Tool{
		{
			Definition: Definition{
				Name:        "export_tasks",
				Description: "Export tasks as JSON or CSV, returned inline or written to outputFile.",
				InputSchema: schema(map[string]any{
					"format":     enum("Export format (default json)", "json", "csv"),
					"completed":  prop("boolean", "Only completed (true) or incomplete (false) tasks"),
					"projectId":  prop("string", "Only tasks of this project"),
					"tags":       stringArray("Tasks must carry every one of these tags"),
					"outputFile": prop("string", "Write the export to this path instead of returning it"),
				}),
			},
			Handler: t.exportTasks,
		},
		{
			Definition: Definition{
				Name:        "export_projects",
				Description: "Export projects as JSON or CSV, returned inline or written to outputFile.",
				InputSchema: schema(map[string]any{
					"format":       enum("Export format (default json)", "json", "csv"),
					"includeStats": prop("boolean", "Include task counts (default false)"),
					"outputFile":   prop("string", "Write the export to this path instead of returning it"),
				}),
			},
			Handler: t.exportProjects,
		},
		{
			Definition: Definition{
				Name: "bulk_export",
				Description: "Export all OmniFocus data (tasks, projects, tags) to files in one operation. " +
					"Bulk is for performance, not transactional consistency: partial exports are possible if some categories fail.",
				InputSchema: schema(map[string]any{
					"outputDirectory":     prop("string", "Directory to save export files"),
					"format":              enum("Export format (default json)", "json", "csv"),
					"includeCompleted":    prop("boolean", "Include completed tasks (default true)"),
					"includeProjectStats": prop("boolean", "Include statistics in project export (default true)"),
				}, "outputDirectory"),
			},
			Handler: t.bulkExport,
		},
	}
}

// inline renders encoded content for a response: parsed JSON, or the CSV text.
func inline(f export.Format, content []byte) any {
	if f == export.CSV {
		return string(content)
	}
	return json.RawMessage(content)
}

func (t *Toolset) deliver(ctx context.Context, f export.Format, count int, content []byte, file string) (any, error) {
	res := exportResponse{Format: string(f), Count: count}
	if file == "" {
		res.Data = inline(f, content)
		return res, nil
	}
	if err := t.Writer.Write(ctx, file, content); err != nil {
		return nil, err
	}
	res.File = file
	return res, nil
}

func (t *Toolset) exportTasks(ctx context.Context, args Args) (any, error) {
	f, err := export.ParseFormat(args.String("format", "json"))
	if err != nil {
		return nil, err
	}
	list, err := t.Client.ListTasks(ctx, omnifocus.TaskFilter{
		Completed: args.OptBool("completed"),
		ProjectID: args.String("projectId", ""),
		Tags:      args.Strings("tags"),
	})
	if err != nil {
		return nil, err
	}
	content, err := export.Tasks(f, list.Tasks)
	if err != nil {
		return nil, err
	}
	return t.deliver(ctx, f, len(list.Tasks), content, args.String("outputFile", ""))
}

func (t *Toolset) exportProjects(ctx context.Context, args Args) (any, error) {
	f, err := export.ParseFormat(args.String("format", "json"))
	if err != nil {
		return nil, err
	}
	list, err := t.Client.ListProjects(ctx, omnifocus.ProjectFilter{
		IncludeTaskCount: args.Bool("includeStats", false),
	})
	if err != nil {
		return nil, err
	}
	content, err := export.Projects(f, list.Projects)
	if err != nil {
		return nil, err
	}
	return t.deliver(ctx, f, len(list.Projects), content, args.String("outputFile", ""))
}

type bulkResponse struct {
	Success   bool                    `json:"success"`
	Message   string                  `json:"message"`
	ExportID  string                  `json:"exportId"`
	Results   map[string]bulk.Outcome `json:"results"`
	Timestamp time.Time               `json:"timestamp"`
	Failures  []bulk.Failure          `json:"failures,omitempty"`
}

const (
	opTasks    = "tasks"
	opProjects = "projects"
	opTags     = "tags"
)

// BulkMessage summarizes a bulk export run.
func BulkMessage(res *bulk.Result) string {
	tasks, projects, tags := res.Count(opTasks), res.Count(opProjects), res.Count(opTags)
	if res.Success {
		return fmt.Sprintf("Exported %d tasks, %d projects, and %d tags", tasks, projects, tags)
	}
	failed := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		failed = append(failed, fmt.Sprintf("%s (%s)", f.Operation, f.Error))
	}
	return fmt.Sprintf("Partial export: Exported %d tasks, %d projects, %d tags. Failed: %s",
		tasks, projects, tags, strings.Join(failed, ", "))
}

/*
bulkExport composes three independent operations. Each fetches then commits its own artifact;
a failed commit is recorded exactly like a failed fetch, and no operation can stop another.
*/
func (t *Toolset) bulkExport(ctx context.Context, args Args) (any, error) {
	dir, err := args.Required("outputDirectory")
	if err != nil {
		return nil, err
	}
	f, err := export.ParseFormat(args.String("format", "json"))
	if err != nil {
		return nil, err
	}
	includeCompleted := args.Bool("includeCompleted", true)
	includeStats := args.Bool("includeProjectStats", true)

	exportID := uuid.NewString()
	t.Logger.Printf("bulk export %s to %s (%s)", exportID, dir, f)

	commit := func(ctx context.Context, name string, count int, content []byte) (bulk.Outcome, error) {
		path := filepath.Join(dir, name)
		if err := t.Writer.Write(ctx, path, content); err != nil {
			return bulk.Outcome{}, err
		}
		return bulk.Outcome{Count: count, Location: path}, nil
	}

	ops := []bulk.Operation{
		{
			Name: opTasks,
			Run: func(ctx context.Context) (bulk.Outcome, error) {
				filter := omnifocus.TaskFilter{}
				if !includeCompleted {
					no := false
					filter.Completed = &no
				}
				list, err := t.Client.ListTasks(ctx, filter)
				if err != nil {
					return bulk.Outcome{}, err
				}
				content, err := export.Tasks(f, list.Tasks)
				if err != nil {
					return bulk.Outcome{}, err
				}
				return commit(ctx, "tasks."+string(f), len(list.Tasks), content)
			},
		},
		{
			Name: opProjects,
			Run: func(ctx context.Context) (bulk.Outcome, error) {
				list, err := t.Client.ListProjects(ctx, omnifocus.ProjectFilter{IncludeTaskCount: includeStats})
				if err != nil {
					return bulk.Outcome{}, err
				}
				content, err := export.Projects(f, list.Projects)
				if err != nil {
					return bulk.Outcome{}, err
				}
				return commit(ctx, "projects."+string(f), len(list.Projects), content)
			},
		},
		{
			Name: opTags,
			Run: func(ctx context.Context) (bulk.Outcome, error) {
				list, err := t.Client.ListTags(ctx, omnifocus.TagOptions{SortBy: "name", IncludeEmpty: true})
				if err != nil {
					return bulk.Outcome{}, err
				}
				content, err := export.Indented(list)
				if err != nil {
					return bulk.Outcome{}, err
				}
				return commit(ctx, "tags.json", list.Summary.TotalTags, content)
			},
		},
	}

	res := t.Aggregator.Run(ctx, ops)
	return bulkResponse{
		Success:   res.Success,
		Message:   BulkMessage(res),
		ExportID:  exportID,
		Results:   res.Outcomes,
		Timestamp: res.Started,
		Failures:  res.Failures,
	}, nil
}
