package tools

import (
	"io"
	"log"
	"time"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	api "github.com/krisalay/omnifocus-mcp-cache/api"
	"github.com/krisalay/omnifocus-mcp-cache/bulk"
	"github.com/krisalay/omnifocus-mcp-cache/internal/export"
	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/krisalay/omnifocus-mcp-cache/invalidation"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
)

// Deps are everything the tools need. Preloader and Counters may be nil.
type Deps struct {
	Cache       api.Cache
	Client      *omnifocus.Client
	Coordinator *invalidation.Coordinator
	Preloader   *preload.Preloader
	Counters    *cache.Counters
	Writer      export.Writer
	Aggregator  *bulk.Aggregator
	Now         func() time.Time
	Logger      *log.Logger
}

type Toolset struct {
	Deps
}

func New(d Deps) *Toolset {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.Aggregator == nil {
		d.Aggregator = &bulk.Aggregator{Logger: d.Logger, Now: d.Now}
	}
	if d.Writer == nil {
		d.Writer = export.NewOSWriter()
	}
	return &Toolset{Deps: d}
}

// Register adds every tool to r.
func (t *Toolset) Register(r *Registry) {
	for _, tool := range t.readTools() {
		r.Register(tool)
	}
	for _, tool := range t.writeTools() {
		r.Register(tool)
	}
	for _, tool := range t.exportTools() {
		r.Register(tool)
	}
	r.Register(t.cacheStatsTool())
}

// NewRegistryWith builds a Toolset and registers it into a fresh Registry.
func NewRegistryWith(d Deps) (*Registry, *Toolset) {
	ts := New(d)
	r := NewRegistry()
	ts.Register(r)
	return r, ts
}
