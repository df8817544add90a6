package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/krisalay/omnifocus-mcp-cache/invalidation"
)

type writeResponse struct {
	Success bool `json:"success"`
	omnifocus.Written
	Message string `json:"message"`
}

// write runs a write script and invalidates before the response is produced. Any failure
// other than a refused call (permission, app not running) may follow a change, so it
// invalidates too, even when ctx is already done.
func (t *Toolset) write(ctx context.Context, s omnifocus.Script, params map[string]any, message string, entities ...invalidation.Entity) (any, error) {
	res, err := t.Client.Write(ctx, s, params)
	if err != nil {
		if !refused(err) {
			t.Coordinator.AfterWrite(context.WithoutCancel(ctx), entities...)
		}
		return nil, err
	}
	t.Coordinator.AfterWrite(ctx, entities...)

	if res.Warning != "" {
		message += ". " + res.Warning
	}
	return writeResponse{Success: true, Written: res, Message: message}, nil
}

// refused reports whether the script never reached OmniFocus.
func refused(err error) bool {
	return omnifocus.IsKind(err, omnifocus.KindPermission) || omnifocus.IsKind(err, omnifocus.KindApp)
}

// dateParam copies a date argument into params: RFC 3339, or nil to clear it when sent empty.
func dateParam(args Args, name string, params map[string]any) error {
	if !args.Has(name) {
		return nil
	}
	tm, err := args.Time(name)
	if err != nil {
		return err
	}
	if tm == nil {
		params[name] = nil
		return nil
	}
	params[name] = tm.Format(time.RFC3339)
	return nil
}

func copyString(args Args, name string, params map[string]any) {
	if args.Has(name) {
		params[name] = args.String(name, "")
	}
}

func copyBool(args Args, name string, params map[string]any) {
	if b := args.OptBool(name); b != nil {
		params[name] = *b
	}
}

func taskEntities(tags bool) []invalidation.Entity {
	if tags {
		return []invalidation.Entity{invalidation.Task, invalidation.Tag}
	}
	return []invalidation.Entity{invalidation.Task}
}

func (t *Toolset) writeTools() []Tool {
	idOnly := func(name, desc string) map[string]any {
		return schema(map[string]any{name: prop("string", desc)}, name)
	}

	return []Tool{
		{
			Definition: Definition{
				Name:        "create_task",
				Description: "Create a task in the inbox or a project. Tags must already exist.",
				InputSchema: schema(map[string]any{
					"name":             prop("string", "Task name"),
					"note":             prop("string", "Task note"),
					"projectId":        prop("string", "Project ID; omit for the inbox"),
					"tags":             stringArray("Existing tag names to assign"),
					"flagged":          prop("boolean", "Flag the task"),
					"dueDate":          prop("string", "RFC 3339 or YYYY-MM-DD"),
					"deferDate":        prop("string", "RFC 3339 or YYYY-MM-DD"),
					"estimatedMinutes": prop("number", "Estimated duration"),
				}, "name"),
			},
			Handler: t.createTask,
		},
		{
			Definition: Definition{
				Name:        "update_task",
				Description: "Update fields of a task. Send an empty date to clear it; tags replace the current set.",
				InputSchema: schema(map[string]any{
					"taskId":           prop("string", "Task ID"),
					"name":             prop("string", "New name"),
					"note":             prop("string", "New note"),
					"flagged":          prop("boolean", "Flag state"),
					"dueDate":          prop("string", "RFC 3339, YYYY-MM-DD or empty to clear"),
					"deferDate":        prop("string", "RFC 3339, YYYY-MM-DD or empty to clear"),
					"estimatedMinutes": prop("number", "Estimated duration"),
					"tags":             stringArray("Replacement tag names"),
				}, "taskId"),
			},
			Handler: t.updateTask,
		},
		{
			Definition: Definition{Name: "complete_task", Description: "Mark a task complete.", InputSchema: idOnly("taskId", "Task ID")},
			Handler:    t.simpleWrite(omnifocus.ScriptCompleteTask, "taskId", "Task completed", invalidation.Task),
		},
		{
			Definition: Definition{Name: "delete_task", Description: "Delete a task.", InputSchema: idOnly("taskId", "Task ID")},
			Handler:    t.simpleWrite(omnifocus.ScriptDeleteTask, "taskId", "Task deleted", invalidation.Task),
		},
		{
			Definition: Definition{
				Name:        "create_project",
				Description: "Create a project, optionally inside a folder.",
				InputSchema: schema(map[string]any{
					"name":      prop("string", "Project name"),
					"note":      prop("string", "Project note"),
					"folder":    prop("string", "Folder name"),
					"flagged":   prop("boolean", "Flag the project"),
					"dueDate":   prop("string", "RFC 3339 or YYYY-MM-DD"),
					"deferDate": prop("string", "RFC 3339 or YYYY-MM-DD"),
				}, "name"),
			},
			Handler: t.createProject,
		},
		{
			Definition: Definition{
				Name:        "update_project",
				Description: "Update fields or status of a project.",
				InputSchema: schema(map[string]any{
					"projectId": prop("string", "Project ID"),
					"name":      prop("string", "New name"),
					"note":      prop("string", "New note"),
					"flagged":   prop("boolean", "Flag state"),
					"status":    enum("New status", "active", "onHold", "dropped"),
					"dueDate":   prop("string", "RFC 3339, YYYY-MM-DD or empty to clear"),
					"deferDate": prop("string", "RFC 3339, YYYY-MM-DD or empty to clear"),
				}, "projectId"),
			},
			Handler: t.updateProject,
		},
		{
			Definition: Definition{
				Name:        "complete_project",
				Description: "Mark a project complete, optionally completing its remaining tasks.",
				InputSchema: schema(map[string]any{
					"projectId":        prop("string", "Project ID"),
					"completeAllTasks": prop("boolean", "Also complete every remaining task"),
				}, "projectId"),
			},
			Handler: t.completeProject,
		},
		{
			Definition: Definition{Name: "delete_project", Description: "Delete a project and its tasks.", InputSchema: idOnly("projectId", "Project ID")},
			Handler:    t.simpleWrite(omnifocus.ScriptDeleteProject, "projectId", "Project deleted", invalidation.Project),
		},
		{
			Definition: Definition{
				Name:        "manage_tags",
				Description: "Create, rename, delete or merge tags.",
				InputSchema: schema(map[string]any{
					"action":    enum("Operation", "create", "rename", "delete", "merge"),
					"tagName":   prop("string", "Tag to act on"),
					"newName":   prop("string", "New name (rename)"),
					"targetTag": prop("string", "Tag to merge into (merge)"),
				}, "action", "tagName"),
			},
			Handler: t.manageTags,
		},
	}
}

func (t *Toolset) simpleWrite(s omnifocus.Script, idArg, message string, entity invalidation.Entity) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		id, err := args.Required(idArg)
		if err != nil {
			return nil, err
		}
		return t.write(ctx, s, map[string]any{idArg: id}, message, entity)
	}
}

func (t *Toolset) createTask(ctx context.Context, args Args) (any, error) {
	name, err := args.Required("name")
	if err != nil {
		return nil, err
	}
	params := map[string]any{"name": name}
	copyString(args, "note", params)
	copyString(args, "projectId", params)
	copyBool(args, "flagged", params)
	tags := args.Strings("tags")
	if len(tags) > 0 {
		params["tags"] = tags
	}
	if n := args.Int("estimatedMinutes", 0); n > 0 {
		params["estimatedMinutes"] = n
	}
	for _, d := range []string{"dueDate", "deferDate"} {
		if err := dateParam(args, d, params); err != nil {
			return nil, err
		}
	}
	return t.write(ctx, omnifocus.ScriptCreateTask, params, "Task created", taskEntities(len(tags) > 0)...)
}

func (t *Toolset) updateTask(ctx context.Context, args Args) (any, error) {
	id, err := args.Required("taskId")
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	copyString(args, "name", updates)
	copyString(args, "note", updates)
	copyBool(args, "flagged", updates)
	if args.Has("estimatedMinutes") {
		updates["estimatedMinutes"] = args.Int("estimatedMinutes", 0)
	}
	for _, d := range []string{"dueDate", "deferDate"} {
		if err := dateParam(args, d, updates); err != nil {
			return nil, err
		}
	}
	tags := args.Has("tags")
	if tags {
		updates["tags"] = args.Strings("tags")
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updates given for task %s", id)
	}
	return t.write(ctx, omnifocus.ScriptUpdateTask, map[string]any{"taskId": id, "updates": updates}, "Task updated", taskEntities(tags)...)
}

func (t *Toolset) createProject(ctx context.Context, args Args) (any, error) {
	name, err := args.Required("name")
	if err != nil {
		return nil, err
	}
	params := map[string]any{"name": name}
	copyString(args, "note", params)
	copyString(args, "folder", params)
	copyBool(args, "flagged", params)
	for _, d := range []string{"dueDate", "deferDate"} {
		if err := dateParam(args, d, params); err != nil {
			return nil, err
		}
	}
	return t.write(ctx, omnifocus.ScriptCreateProject, params, "Project created", invalidation.Project)
}

func (t *Toolset) updateProject(ctx context.Context, args Args) (any, error) {
	id, err := args.Required("projectId")
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	copyString(args, "name", updates)
	copyString(args, "note", updates)
	copyString(args, "status", updates)
	copyBool(args, "flagged", updates)
	for _, d := range []string{"dueDate", "deferDate"} {
		if err := dateParam(args, d, updates); err != nil {
			return nil, err
		}
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updates given for project %s", id)
	}
	return t.write(ctx, omnifocus.ScriptUpdateProject, map[string]any{"projectId": id, "updates": updates}, "Project updated", invalidation.Project)
}

func (t *Toolset) completeProject(ctx context.Context, args Args) (any, error) {
	id, err := args.Required("projectId")
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"projectId":        id,
		"completeAllTasks": args.Bool("completeAllTasks", false),
	}
	return t.write(ctx, omnifocus.ScriptCompleteProject, params, "Project completed", invalidation.Project)
}

func (t *Toolset) manageTags(ctx context.Context, args Args) (any, error) {
	action, err := args.Required("action")
	if err != nil {
		return nil, err
	}
	tag, err := args.Required("tagName")
	if err != nil {
		return nil, err
	}
	params := map[string]any{"action": action, "tagName": tag}

	switch action {
	case "create", "delete":
	case "rename":
		if params["newName"], err = args.Required("newName"); err != nil {
			return nil, err
		}
	case "merge":
		if params["targetTag"], err = args.Required("targetTag"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown action %q (create, rename, delete, merge)", action)
	}

	messages := map[string]string{
		"create": "Tag created",
		"rename": "Tag renamed",
		"delete": "Tag deleted",
		"merge":  "Tags merged",
	}
	return t.write(ctx, omnifocus.ScriptManageTags, params, messages[action], invalidation.Tag)
}
