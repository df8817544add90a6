package omnifocus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client is the typed face of an Executor.
type Client struct {
	exec Executor
}

func NewClient(exec Executor) *Client {
	return &Client{exec: exec}
}

func call[T any](ctx context.Context, c *Client, s Script, params map[string]any) (T, error) {
	var out T
	raw, err := c.exec.Execute(ctx, s, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{Kind: KindScript, Script: s, Message: fmt.Sprintf("unexpected result shape: %v", err), Err: err}
	}
	return out, nil
}

// Ping checks that the application answers and automation is permitted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.exec.Execute(ctx, ScriptPing, nil)
	return err
}

type TaskFilter struct {
	Completed *bool      `json:"completed,omitempty"`
	Flagged   *bool      `json:"flagged,omitempty"`
	Available *bool      `json:"available,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Search    string     `json:"search,omitempty"`
	DueBefore *time.Time `json:"dueBefore,omitempty"`
	DueAfter  *time.Time `json:"dueAfter,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

func (f TaskFilter) params() map[string]any {
	return map[string]any{"filter": f}
}

func (c *Client) ListTasks(ctx context.Context, f TaskFilter) (TaskList, error) {
	return call[TaskList](ctx, c, ScriptListTasks, f.params())
}

func (c *Client) TodaysAgenda(ctx context.Context, date string, includeFlagged bool) (Agenda, error) {
	return call[Agenda](ctx, c, ScriptTodaysAgenda, map[string]any{
		"date":           date,
		"includeFlagged": includeFlagged,
	})
}

type ProjectFilter struct {
	Status           []string `json:"status,omitempty"`
	Flagged          *bool    `json:"flagged,omitempty"`
	Search           string   `json:"search,omitempty"`
	IncludeTaskCount bool     `json:"includeTaskCount"`
}

func (c *Client) ListProjects(ctx context.Context, f ProjectFilter) (ProjectList, error) {
	return call[ProjectList](ctx, c, ScriptListProjects, map[string]any{"filter": f})
}

type TagOptions struct {
	SortBy            string `json:"sortBy"`
	IncludeEmpty      bool   `json:"includeEmpty"`
	IncludeUsageStats bool   `json:"includeUsageStats"`
}

func (c *Client) ListTags(ctx context.Context, o TagOptions) (TagList, error) {
	return call[TagList](ctx, c, ScriptListTags, map[string]any{"options": o})
}

func (c *Client) ProductivityStats(ctx context.Context, period string, since time.Time) (ProductivityStats, error) {
	return call[ProductivityStats](ctx, c, ScriptProductivityStats, map[string]any{
		"period": period,
		"since":  since.UTC().Format(time.RFC3339),
	})
}

// Write runs one of the write scripts with its raw arguments.
func (c *Client) Write(ctx context.Context, s Script, args map[string]any) (Written, error) {
	return call[Written](ctx, c, s, args)
}
