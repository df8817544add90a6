package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	"github.com/krisalay/omnifocus-mcp-cache/engine"
	"github.com/krisalay/omnifocus-mcp-cache/expiration"
	"github.com/krisalay/omnifocus-mcp-cache/internal/export"
	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/krisalay/omnifocus-mcp-cache/internal/tools"
	"github.com/krisalay/omnifocus-mcp-cache/invalidation"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor answers scripts from canned responses and counts calls.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[omnifocus.Script]func(params map[string]any) (string, error)
	calls     map[omnifocus.Script]int
	params    map[omnifocus.Script]map[string]any
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		responses: map[omnifocus.Script]func(map[string]any) (string, error){},
		calls:     map[omnifocus.Script]int{},
		params:    map[omnifocus.Script]map[string]any{},
	}
}

func (f *fakeExecutor) on(s omnifocus.Script, out string) {
	f.responses[s] = func(map[string]any) (string, error) { return out, nil }
}

func (f *fakeExecutor) fail(s omnifocus.Script, err error) {
	f.responses[s] = func(map[string]any) (string, error) { return "", err }
}

func (f *fakeExecutor) count(s omnifocus.Script) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[s]
}

func (f *fakeExecutor) Execute(_ context.Context, s omnifocus.Script, params map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[s]++
	f.params[s] = params
	fn, ok := f.responses[s]
	f.mu.Unlock()

	if !ok {
		return nil, &omnifocus.Error{Kind: omnifocus.KindApp, Script: s, Message: "no canned response"}
	}
	out, err := fn(params)
	if err != nil {
		return nil, err
	}
	return omnifocus.Decode(s, []byte(out))
}

func tasksJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":"t%d","name":"Task %d","tags":["home"],"flagged":false,"completed":false}`, i, i)
	}
	return fmt.Sprintf(`{"tasks":[%s],"total":%d}`, strings.Join(items, ","), n)
}

func tagsJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":"g%d","name":"tag%d","available":true,"allowsNextAction":true}`, i, i)
	}
	return fmt.Sprintf(`{"tags":[%s],"summary":{"totalTags":%d,"available":%d,"hidden":0}}`, strings.Join(items, ","), n, n)
}

const projectsJSON = `{"projects":[{"id":"p1","name":"Garden","status":"active","flagged":false}],"total":1}`

type env struct {
	exec     *fakeExecutor
	cache    *cache.CategoryCache
	counters *cache.Counters
	fs       afero.Fs
	reg      *tools.Registry
	pre      *preload.Preloader
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		exec:     newFakeExecutor(),
		counters: cache.NewCounters(),
		fs:       afero.NewMemMapFs(),
		now:      time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local),
	}
	clock := func() time.Time { return e.now }

	opts := cache.Options{TTLs: map[types.Category]time.Duration{
		types.CategoryTasks:     5 * time.Minute,
		types.CategoryProjects:  10 * time.Minute,
		types.CategoryTags:      20 * time.Minute,
		types.CategoryAnalytics: time.Hour,
		types.CategoryToday:     time.Minute,
	}}
	c, err := cache.New(opts, engine.NewCacheEngine(expiration.ExpireAfterWrite{}, e.counters, clock, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	e.cache = c

	client := omnifocus.NewClient(e.exec)
	e.pre = preload.New(preload.Config{
		Tags:     tools.TagsResource(c, client),
		Projects: tools.ProjectsResource(c, client),
		Now:      clock,
	})

	e.reg, _ = tools.NewRegistryWith(tools.Deps{
		Cache:       c,
		Client:      client,
		Coordinator: invalidation.New(c, e.pre, nil, nil),
		Preloader:   e.pre,
		Counters:    e.counters,
		Writer:      &export.FSWriter{FS: e.fs},
		Now:         clock,
	})
	return e
}

func (e *env) call(t *testing.T, name string, args tools.Args) map[string]any {
	t.Helper()
	out, err := e.reg.Call(context.Background(), name, args)
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestListTagsIsCached(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(3))

	first := e.call(t, "list_tags", tools.Args{})
	second := e.call(t, "list_tags", tools.Args{"sortBy": "name", "includeEmpty": "true"})

	assert.Equal(t, false, first["from_cache"])
	assert.Equal(t, true, second["from_cache"], "defaults and explicit values share a key")
	assert.Equal(t, 1, e.exec.count(omnifocus.ScriptListTags))
	assert.Len(t, second["tags"], 3)
}

func TestDifferentParametersDoNotShareEntries(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(1))

	e.call(t, "list_tags", tools.Args{"sortBy": "name"})
	e.call(t, "list_tags", tools.Args{"sortBy": "usage"})
	e.call(t, "list_tags", tools.Args{"includeUsageStats": true})

	assert.Equal(t, 3, e.exec.count(omnifocus.ScriptListTags))
}

func TestFailedReadIsNotCached(t *testing.T) {
	e := newEnv(t)
	e.exec.fail(omnifocus.ScriptListProjects, &omnifocus.Error{Kind: omnifocus.KindTimeout, Message: "timed out"})

	_, err := e.reg.Call(context.Background(), "list_projects", tools.Args{})
	assert.True(t, omnifocus.IsKind(err, omnifocus.KindTimeout))

	e.exec.on(omnifocus.ScriptListProjects, projectsJSON)
	out := e.call(t, "list_projects", tools.Args{})
	assert.Equal(t, false, out["from_cache"])
	assert.Equal(t, 2, e.exec.count(omnifocus.ScriptListProjects))
}

func TestTaskWriteInvalidatesTaskViews(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(2))
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(2))
	e.exec.on(omnifocus.ScriptTodaysAgenda, `{"date":"2024-06-03","overdue":[],"dueToday":[]}`)
	e.exec.on(omnifocus.ScriptProductivityStats, `{"period":"week","completed":4,"created":6}`)
	e.exec.on(omnifocus.ScriptCompleteTask, `{"id":"t1","name":"Task 1","changed":1}`)

	e.call(t, "list_tasks", tools.Args{})
	e.call(t, "list_tags", tools.Args{})
	e.call(t, "list_tags", tools.Args{"includeUsageStats": true})
	e.call(t, "todays_agenda", tools.Args{})
	e.call(t, "productivity_stats", tools.Args{})

	out := e.call(t, "complete_task", tools.Args{"taskId": "t1"})
	assert.Equal(t, true, out["success"])

	assert.Equal(t, false, e.call(t, "list_tasks", tools.Args{})["from_cache"])
	assert.Equal(t, false, e.call(t, "todays_agenda", tools.Args{})["from_cache"])
	assert.Equal(t, false, e.call(t, "productivity_stats", tools.Args{})["from_cache"])
	assert.Equal(t, false, e.call(t, "list_tags", tools.Args{"includeUsageStats": true})["from_cache"],
		"usage statistics live in analytics")
	assert.Equal(t, true, e.call(t, "list_tags", tools.Args{})["from_cache"],
		"the cheap tag listing survives a task write")
}

func TestFailedWriteInvalidatesUnlessRefused(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		invalidate bool
	}{
		{"script", &omnifocus.Error{Kind: omnifocus.KindScript, Message: "Can't get task"}, true},
		{"timeout", &omnifocus.Error{Kind: omnifocus.KindTimeout, Message: "timed out"}, true},
		{"canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("osascript: %w", context.DeadlineExceeded), true},
		{"permission", &omnifocus.Error{Kind: omnifocus.KindPermission, Message: "not authorized"}, false},
		{"app", &omnifocus.Error{Kind: omnifocus.KindApp, Message: "OmniFocus is not running"}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.exec.on(omnifocus.ScriptListTasks, tasksJSON(2))
			e.exec.fail(omnifocus.ScriptCompleteTask, tc.err)

			e.call(t, "list_tasks", tools.Args{})
			require.Equal(t, true, e.call(t, "list_tasks", tools.Args{})["from_cache"])

			_, err := e.reg.Call(context.Background(), "complete_task", tools.Args{"taskId": "t1"})
			require.Error(t, err)

			assert.Equal(t, !tc.invalidate, e.call(t, "list_tasks", tools.Args{})["from_cache"])
		})
	}
}

func TestCanceledWriteStillInvalidates(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(1))
	e.exec.fail(omnifocus.ScriptCompleteTask, context.Canceled)
	e.call(t, "list_tasks", tools.Args{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.reg.Call(ctx, "complete_task", tools.Args{"taskId": "t1"})
	require.Error(t, err)

	assert.Equal(t, false, e.call(t, "list_tasks", tools.Args{})["from_cache"])
}

func TestCreateTaskWithTagsInvalidatesTags(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(2))
	e.exec.on(omnifocus.ScriptCreateTask, `{"id":"t9","name":"New","tags":["home"],"warning":"Tags not found and were not added: gym. Use manage_tags tool to create them first."}`)

	e.call(t, "list_tags", tools.Args{})
	out := e.call(t, "create_task", tools.Args{"name": "New", "tags": []any{"home", "gym"}, "dueDate": "2024-06-05"})

	assert.Contains(t, out["message"], "manage_tags")
	assert.Equal(t, false, e.call(t, "list_tags", tools.Args{})["from_cache"])

	sent := e.exec.params[omnifocus.ScriptCreateTask]
	assert.Equal(t, []string{"home", "gym"}, sent["tags"])
	assert.Contains(t, sent["dueDate"], "2024-06-05T00:00:00")
}

func TestWriteValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.reg.Call(ctx, "create_task", tools.Args{})
	assert.ErrorContains(t, err, "name is required")

	_, err = e.reg.Call(ctx, "update_task", tools.Args{"taskId": "t1"})
	assert.ErrorContains(t, err, "no updates")

	_, err = e.reg.Call(ctx, "manage_tags", tools.Args{"action": "rename", "tagName": "a"})
	assert.ErrorContains(t, err, "newName is required")

	_, err = e.reg.Call(ctx, "manage_tags", tools.Args{"action": "explode", "tagName": "a"})
	assert.ErrorContains(t, err, "unknown action")

	_, err = e.reg.Call(ctx, "create_task", tools.Args{"name": "x", "dueDate": "next tuesday"})
	assert.ErrorContains(t, err, "dueDate")

	assert.Zero(t, e.exec.count(omnifocus.ScriptCreateTask))
}

func TestProjectWriteDropsResources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(1))
	e.exec.on(omnifocus.ScriptListProjects, projectsJSON)
	e.exec.on(omnifocus.ScriptCreateProject, `{"id":"p2","name":"Move house","changed":1}`)

	require.NoError(t, e.pre.Preload(ctx))
	assert.Equal(t, preload.Warm, e.pre.State())

	e.call(t, "create_project", tools.Args{"name": "Move house"})
	assert.Equal(t, preload.Cold, e.pre.State())

	out, err := e.pre.GetResource(ctx, preload.ProjectsURI)
	require.NoError(t, err)
	assert.Contains(t, out, "Garden")
	assert.Equal(t, 2, e.exec.count(omnifocus.ScriptListProjects))
}

func TestTodaysAgendaKeyIncludesDate(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptTodaysAgenda, `{"date":"x","overdue":[],"dueToday":[]}`)

	e.call(t, "todays_agenda", tools.Args{})
	assert.Equal(t, true, e.call(t, "todays_agenda", tools.Args{})["from_cache"])

	e.now = e.now.Add(14 * time.Hour) // local midnight
	assert.Equal(t, false, e.call(t, "todays_agenda", tools.Args{})["from_cache"])
	assert.Equal(t, "2024-06-04", e.exec.params[omnifocus.ScriptTodaysAgenda]["date"])
}

func TestBulkExportPartialFailure(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(150))
	e.exec.fail(omnifocus.ScriptListProjects, &omnifocus.Error{Kind: omnifocus.KindTimeout, Message: "Automation timeout"})
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(25))

	out := e.call(t, "bulk_export", tools.Args{"outputDirectory": "/exports"})

	assert.Equal(t, false, out["success"])
	msg := out["message"].(string)
	assert.True(t, strings.HasPrefix(msg, "Partial export: Exported 150 tasks, 0 projects, 25 tags. Failed: projects ("), msg)
	assert.Contains(t, msg, "Automation timeout")

	failures := out["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "projects", failures[0].(map[string]any)["operation"])

	results := out["results"].(map[string]any)
	assert.EqualValues(t, 150, results["tasks"].(map[string]any)["exported"])
	assert.EqualValues(t, 0, results["projects"].(map[string]any)["exported"])
	assert.NotEmpty(t, out["exportId"])

	exists := func(p string) bool { ok, _ := afero.Exists(e.fs, p); return ok }
	assert.True(t, exists("/exports/tasks.json"))
	assert.False(t, exists("/exports/projects.json"))
	assert.True(t, exists("/exports/tags.json"))
}

func TestBulkExportAllFail(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("OmniFocus is not running")
	e.exec.fail(omnifocus.ScriptListTasks, boom)
	e.exec.fail(omnifocus.ScriptListProjects, boom)
	e.exec.fail(omnifocus.ScriptListTags, boom)

	out := e.call(t, "bulk_export", tools.Args{"outputDirectory": "/exports", "format": "csv"})

	assert.Equal(t, false, out["success"])
	assert.Len(t, out["failures"], 3)
	assert.Contains(t, out["message"], "Exported 0 tasks, 0 projects, 0 tags")

	files, _ := afero.Glob(e.fs, "/exports/*")
	assert.Empty(t, files, "no artifact is written when every operation fails")
}

func TestBulkExportWriteFailureIsRecorded(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(2))
	e.exec.on(omnifocus.ScriptListProjects, projectsJSON)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(1))

	reg, _ := tools.NewRegistryWith(tools.Deps{
		Cache:       e.cache,
		Client:      omnifocus.NewClient(e.exec),
		Coordinator: invalidation.New(e.cache, nil, nil, nil),
		Writer:      &export.FSWriter{FS: afero.NewReadOnlyFs(afero.NewMemMapFs())},
	})

	out, err := reg.Call(context.Background(), "bulk_export", tools.Args{"outputDirectory": "/exports"})
	require.NoError(t, err)
	raw, _ := json.Marshal(out)
	assert.Contains(t, string(raw), `"success":false`)
	assert.Contains(t, string(raw), `Exported 0 tasks, 0 projects, 0 tags`)
}

func TestBulkExportSuccessMessage(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(150))
	e.exec.on(omnifocus.ScriptListProjects, projectsJSON)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(25))

	out := e.call(t, "bulk_export", tools.Args{"outputDirectory": "/exports", "includeCompleted": false})
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Exported 150 tasks, 1 projects, and 25 tags", out["message"])
	assert.Nil(t, out["failures"])

	filter := e.exec.params[omnifocus.ScriptListTasks]["filter"].(omnifocus.TaskFilter)
	require.NotNil(t, filter.Completed)
	assert.False(t, *filter.Completed)
}

func TestExportTasksInlineCSV(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTasks, tasksJSON(2))

	out := e.call(t, "export_tasks", tools.Args{"format": "csv"})
	assert.EqualValues(t, 2, out["count"])
	assert.True(t, strings.HasPrefix(out["data"].(string), "id,name,project"))

	// exports always read fresh
	e.call(t, "export_tasks", tools.Args{})
	assert.Equal(t, 2, e.exec.count(omnifocus.ScriptListTasks))
}

func TestExportProjectsToFile(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListProjects, projectsJSON)

	out := e.call(t, "export_projects", tools.Args{"outputFile": "/out/p.json"})
	assert.Equal(t, "/out/p.json", out["file"])
	assert.Nil(t, out["data"])

	content, err := afero.ReadFile(e.fs, "/out/p.json")
	require.NoError(t, err)
	assert.Contains(t, string(content), "Garden")
}

func TestCacheStats(t *testing.T) {
	e := newEnv(t)
	e.exec.on(omnifocus.ScriptListTags, tagsJSON(1))

	e.call(t, "list_tags", tools.Args{})
	e.call(t, "list_tags", tools.Args{})

	out := e.call(t, "cache_stats", tools.Args{})
	tags := out["categories"].(map[string]any)[string(types.CategoryTags)].(map[string]any)
	assert.EqualValues(t, 1, tags["hits"])
	assert.EqualValues(t, 1, tags["misses"])
	assert.EqualValues(t, 1200, out["ttl_seconds"].(map[string]any)["tags"])
	assert.Equal(t, "cold", out["resources"])
}

func TestRegistry(t *testing.T) {
	e := newEnv(t)

	names := map[string]bool{}
	for _, d := range e.reg.List() {
		names[d.Name] = true
		assert.Equal(t, "object", d.InputSchema["type"], d.Name)
	}
	for _, want := range []string{
		"list_tasks", "todays_agenda", "list_projects", "list_tags", "productivity_stats",
		"create_task", "update_task", "complete_task", "delete_task",
		"create_project", "update_project", "complete_project", "delete_project",
		"manage_tags", "export_tasks", "export_projects", "bulk_export", "cache_stats",
	} {
		assert.True(t, names[want], want)
	}

	_, err := e.reg.Call(context.Background(), "launch_rockets", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)

	assert.Panics(t, func() { e.reg.Register(tools.Tool{Definition: tools.Definition{Name: "list_tags"}}) })
}
