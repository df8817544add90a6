package preload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/preload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	tagCalls     atomic.Int32
	projectCalls atomic.Int32
	tagsErr      atomic.Pointer[error]
	gate         chan struct{}
}

func (f *fakeSource) tags(ctx context.Context) (any, error) {
	f.tagCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if e := f.tagsErr.Load(); e != nil {
		return nil, *e
	}
	return map[string]any{"tags": []string{"home", "work"}, "summary": map[string]int{"total": 2}}, nil
}

func (f *fakeSource) projects(ctx context.Context) (any, error) {
	f.projectCalls.Add(1)
	return map[string]any{"projects": []string{"Garden"}, "total": 1}, nil
}

func newPreloader(src *fakeSource) (*preload.Preloader, *clock) {
	clk := &clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	p := preload.New(preload.Config{
		Tags:     src.tags,
		Projects: src.projects,
		Now:      clk.Now,
	})
	return p, clk
}

func TestConcurrentPreloadFetchesOnce(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	p, _ := newPreloader(src)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Preload(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return src.tagCalls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, preload.Loading, p.State())
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.tagCalls.Load())
	assert.EqualValues(t, 1, src.projectCalls.Load())
	assert.Equal(t, preload.Warm, p.State())

	a, err := p.GetResource(context.Background(), preload.TagsURI)
	require.NoError(t, err)
	b, err := p.GetResource(context.Background(), preload.TagsURI)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFreshnessWindow(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	p, clk := newPreloader(src)

	require.NoError(t, p.Preload(ctx))
	assert.EqualValues(t, 1, src.tagCalls.Load())

	clk.Advance(4*time.Minute + 59*time.Second)
	_, err := p.GetResource(ctx, preload.TagsURI)
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.tagCalls.Load(), "fresh snapshot must not reload")

	clk.Advance(2 * time.Second)
	_, err = p.GetResource(ctx, preload.TagsURI)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.tagCalls.Load(), "stale snapshot reloads exactly once")

	_, err = p.GetResource(ctx, preload.ProjectsURI)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.projectCalls.Load())
}

func TestColdReadLoads(t *testing.T) {
	src := &fakeSource{}
	p, _ := newPreloader(src)
	assert.Equal(t, preload.Cold, p.State())

	out, err := p.GetResource(context.Background(), preload.ProjectsURI)
	require.NoError(t, err)
	assert.Contains(t, out, "Garden")
	assert.Contains(t, out, "\n  ", "resource JSON is indented")
}

func TestPartialFailureLeavesResourceUnset(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	boom := errors.New("automation denied")
	src.tagsErr.Store(&boom)
	p, _ := newPreloader(src)

	err := p.Preload(ctx)
	assert.ErrorIs(t, err, boom)

	out, err := p.GetResource(ctx, preload.ProjectsURI)
	require.NoError(t, err)
	assert.Contains(t, out, "Garden")

	_, err = p.GetResource(ctx, preload.TagsURI)
	assert.ErrorIs(t, err, preload.ErrUnavailable)

	src.tagsErr.Store(nil)
	p.Invalidate()
	_, err = p.GetResource(ctx, preload.TagsURI)
	require.NoError(t, err)
}

func TestMissingResourceWaitsForWindow(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	boom := errors.New("automation denied")
	src.tagsErr.Store(&boom)
	p, clk := newPreloader(src)

	_ = p.Preload(ctx)
	for i := 0; i < 5; i++ {
		_, err := p.GetResource(ctx, preload.TagsURI)
		assert.ErrorIs(t, err, preload.ErrUnavailable)
		clk.Advance(time.Minute)
	}
	assert.EqualValues(t, 1, src.tagCalls.Load(), "reads inside the window do not reload")
	assert.EqualValues(t, 1, src.projectCalls.Load())

	src.tagsErr.Store(nil)
	clk.Advance(time.Second)
	_, err := p.GetResource(ctx, preload.TagsURI)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.tagCalls.Load())
	assert.EqualValues(t, 2, src.projectCalls.Load())
}

func TestUnknownResource(t *testing.T) {
	src := &fakeSource{}
	p, _ := newPreloader(src)

	_, err := p.GetResource(context.Background(), "omnifocus://perspectives")
	assert.ErrorIs(t, err, preload.ErrUnknownResource)
	assert.EqualValues(t, 0, src.tagCalls.Load())
}

func TestInvalidateDropsSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	p, _ := newPreloader(src)

	require.NoError(t, p.Preload(ctx))
	p.Invalidate()
	assert.Equal(t, preload.Cold, p.State())

	_, err := p.GetResource(ctx, preload.TagsURI)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.tagCalls.Load())
}

func TestInvalidateDuringLoadDiscardsResult(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	p, _ := newPreloader(src)

	done := make(chan error)
	go func() { done <- p.Preload(context.Background()) }()

	require.Eventually(t, func() bool { return src.tagCalls.Load() == 1 }, time.Second, time.Millisecond)
	p.Invalidate()
	close(src.gate)
	require.NoError(t, <-done)

	assert.Equal(t, preload.Cold, p.State(), "load overtaken by invalidation must not commit")
}

func TestCallerCancellationDoesNotCancelLoad(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	p, _ := newPreloader(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Preload(ctx) }()

	require.Eventually(t, func() bool { return src.tagCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(src.gate)
	require.Eventually(t, func() bool { return p.State() == preload.Warm }, time.Second, time.Millisecond)
}

func TestResources(t *testing.T) {
	p, _ := newPreloader(&fakeSource{})

	res := p.Resources()
	require.Len(t, res, 2)
	assert.Equal(t, preload.TagsURI, res[0].URI)
	assert.Equal(t, "application/json", res[1].MIMEType)
}
