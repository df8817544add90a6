// Package preload keeps a warm snapshot of the reference data clients read as resources.
package preload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	TagsURI     = "omnifocus://tags"
	ProjectsURI = "omnifocus://projects"

	DefaultWindow  = 5 * time.Minute
	DefaultTimeout = 60 * time.Second

	flightKey = "preload"
)

var (
	ErrUnknownResource = errors.New("preload: unknown resource URI")
	ErrUnavailable     = errors.New("preload: resource not available")
)

// State of the snapshot.
type State string

const (
	Cold    State = "cold"
	Loading State = "loading"
	Warm    State = "warm"
)

// Resource describes a readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType"`
}

// Fetch produces the payload of one sub-resource.
type Fetch func(ctx context.Context) (any, error)

type Config struct {
	// Tags fetches every tag, cheap variant (no usage statistics).
	Tags Fetch
	// Projects fetches active projects, cheap variant (no task counts).
	Projects Fetch

	// Window is how long a snapshot stays fresh.
	Window time.Duration
	// Timeout bounds one detached load.
	Timeout time.Duration

	Now     func() time.Time
	Metrics types.Metrics
	Logger  *log.Logger
}

type snapshot struct {
	values      map[string]any
	lastRefresh time.Time
}

/*
Preloader owns the resource snapshot.

Loads are single-flight: concurrent callers join the load in progress. A load runs detached from
the caller that started it, so a caller giving up does not cancel it for everyone else.
Invalidate bumps the generation; a load that started under an older generation commits nothing.
*/
type Preloader struct {
	cfg Config

	mu      sync.Mutex
	snap    snapshot
	gen     uint64
	loading int

	sf singleflight.Group
}

func New(cfg Config) *Preloader {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = types.NoopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Preloader{
		cfg:  cfg,
		snap: snapshot{values: map[string]any{}},
	}
}

// Resources lists the resources this preloader serves.
func (p *Preloader) Resources() []Resource {
	return []Resource{
		{
			URI:         TagsURI,
			Name:        "OmniFocus Tags",
			Description: "All available tags/contexts from OmniFocus",
			MIMEType:    "application/json",
		},
		{
			URI:         ProjectsURI,
			Name:        "OmniFocus Projects",
			Description: "All active projects from OmniFocus",
			MIMEType:    "application/json",
		},
	}
}

func (p *Preloader) fetchers() map[string]Fetch {
	return map[string]Fetch{
		TagsURI:     p.cfg.Tags,
		ProjectsURI: p.cfg.Projects,
	}
}

// State reports whether the snapshot is cold, loading or warm.
func (p *Preloader) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.loading > 0:
		return Loading
	case p.snap.lastRefresh.IsZero():
		return Cold
	default:
		return Warm
	}
}

/*
Preload loads the snapshot, or joins the load already in flight. Every joiner gets the same
result. The returned error joins the sub-resource failures; sub-resources that loaded are
committed regardless. If ctx ends first, Preload returns ctx.Err() and the load carries on.
*/
func (p *Preloader) Preload(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	ch := p.sf.DoChan(flightKey, func() (any, error) {
		return nil, p.load(base)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Preloader) load(base context.Context) error {
	p.mu.Lock()
	gen := p.gen
	p.loading++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.loading--
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(base, p.cfg.Timeout)
	defer cancel()

	p.cfg.Logger.Printf("starting resource preload")

	var (
		g       errgroup.Group
		errMu   sync.Mutex
		errs    []error
		loaded  int
		fetches = p.fetchers()
	)
	for uri, fetch := range fetches {
		if fetch == nil {
			continue
		}
		uri, fetch := uri, fetch
		g.Go(func() error {
			v, err := fetch(ctx)

			p.mu.Lock()
			if p.gen == gen {
				if err != nil {
					delete(p.snap.values, uri)
				} else {
					p.snap.values[uri] = v
				}
			}
			p.mu.Unlock()

			errMu.Lock()
			defer errMu.Unlock()
			if err != nil {
				p.cfg.Logger.Printf("failed to preload %s: %v", uri, err)
				errs = append(errs, fmt.Errorf("%s: %w", uri, err))
			} else {
				loaded++
			}
			// Sub-resources are independent: a failure must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	committed := p.gen == gen
	if committed && loaded > 0 {
		p.snap.lastRefresh = p.cfg.Now()
	}
	p.mu.Unlock()

	if !committed {
		p.cfg.Logger.Printf("preload discarded: invalidated while loading")
	} else {
		p.cfg.Metrics.Refresh()
		p.cfg.Logger.Printf("resource preload complete (%d/%d loaded)", loaded, len(fetches))
	}
	return errors.Join(errs...)
}

// needsRefresh reports whether the snapshot is cold or older than the window.
// A sub-resource that failed to load stays unavailable until then.
func (p *Preloader) needsRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snap.lastRefresh.IsZero() {
		return true
	}
	return p.cfg.Now().Sub(p.snap.lastRefresh) > p.cfg.Window
}

/*
GetResource returns the indented JSON of one resource, refreshing the snapshot first when it is
cold or stale.

BEHAVIOR:
  - a resource missing from a fresh snapshot answers ErrUnavailable without another load.
*/
func (p *Preloader) GetResource(ctx context.Context, uri string) (string, error) {
	if _, ok := p.fetchers()[uri]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, uri)
	}

	// A load overtaken by an invalidation commits nothing; retry once against the new generation.
	for attempt := 0; attempt < 2 && p.needsRefresh(); attempt++ {
		p.cfg.Logger.Printf("resource %s stale, refreshing", uri)
		p.mu.Lock()
		gen := p.gen
		p.mu.Unlock()

		if err := p.Preload(ctx); err != nil && ctx.Err() != nil {
			return "", ctx.Err()
		}

		p.mu.Lock()
		moved := p.gen != gen
		p.mu.Unlock()
		if !moved {
			break
		}
	}

	p.mu.Lock()
	v, ok := p.snap.values[uri]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, uri)
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("preload: encode %s: %w", uri, err)
	}
	return string(b), nil
}

// Invalidate drops the snapshot. Loads already running will not commit.
func (p *Preloader) Invalidate() {
	p.mu.Lock()
	p.gen++
	p.snap = snapshot{values: map[string]any{}}
	p.mu.Unlock()

	p.sf.Forget(flightKey)
	p.cfg.Logger.Printf("resource snapshot invalidated")
}
