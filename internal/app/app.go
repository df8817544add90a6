// Package app assembles the server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	cache "github.com/krisalay/omnifocus-mcp-cache"
	"github.com/krisalay/omnifocus-mcp-cache/backend"
	"github.com/krisalay/omnifocus-mcp-cache/bulk"
	"github.com/krisalay/omnifocus-mcp-cache/engine"
	"github.com/krisalay/omnifocus-mcp-cache/expiration"
	"github.com/krisalay/omnifocus-mcp-cache/internal/config"
	"github.com/krisalay/omnifocus-mcp-cache/internal/export"
	"github.com/krisalay/omnifocus-mcp-cache/internal/logging"
	"github.com/krisalay/omnifocus-mcp-cache/internal/mcp"
	"github.com/krisalay/omnifocus-mcp-cache/internal/omnifocus"
	"github.com/krisalay/omnifocus-mcp-cache/internal/tools"
	"github.com/krisalay/omnifocus-mcp-cache/internal/watch"
	"github.com/krisalay/omnifocus-mcp-cache/invalidation"
	"github.com/krisalay/omnifocus-mcp-cache/preload"
	"github.com/spf13/afero"
)

type App struct {
	Config      *config.Config
	Cache       *cache.CategoryCache
	Counters    *cache.Counters
	Client      *omnifocus.Client
	Preloader   *preload.Preloader
	Coordinator *invalidation.Coordinator
	Registry    *tools.Registry
	Server      *mcp.Server

	logs    *logging.Logging
	logger  *log.Logger
	closers []io.Closer

	// warmed is closed once the background warm-up of Serve is over.
	warmed chan struct{}
}

// Options overrides the pieces tests replace.
type Options struct {
	// Executor defaults to osascript as configured.
	Executor omnifocus.Executor
	// FS receives export files; defaults to the OS filesystem.
	FS afero.Fs
}

/*
New wires everything: backend → cache → client → preloader → coordinator → tools → server.
A backend that cannot start (unreachable redis) fails New.
*/
func New(cfg *config.Config, logs *logging.Logging, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Counters: cache.NewCounters(),
		logs:     logs,
		logger:   logs.For("app"),
	}

	stores, closer, err := backend.NewFactory(cfg.Backend(), logs.For("backend"))
	if err != nil {
		return nil, fmt.Errorf("cache backend: %w", err)
	}
	a.closers = append(a.closers, closer)

	eng := engine.NewCacheEngine(expiration.ExpireAfterWrite{}, a.Counters, nil, logs.For("cache"))
	c, err := cache.New(cache.Options{
		DefaultTTL: cfg.Cache.DefaultTTL,
		TTLs:       cfg.TTLs(),
		MaxEntries: cfg.Backend().PartitionBound(),
		Eviction:   cfg.EvictionPolicy(),
		Stores:     stores,
	}, eng)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = c
	a.closers = append([]io.Closer{c}, a.closers...)

	exec := opts.Executor
	if exec == nil {
		exec = omnifocus.NewOsascriptExecutor(cfg.OmniFocus.Osascript, cfg.OmniFocus.Timeout, logs.For("omnifocus"))
	}
	a.Client = omnifocus.NewClient(exec)

	a.Preloader = preload.New(preload.Config{
		Tags:     tools.TagsResource(c, a.Client),
		Projects: tools.ProjectsResource(c, a.Client),
		Window:   cfg.Resources.FreshnessWindow,
		Timeout:  cfg.Resources.PreloadTimeout,
		Metrics:  a.Counters,
		Logger:   logs.For("preload"),
	})
	a.Coordinator = invalidation.New(c, a.Preloader, nil, logs.For("invalidation"))

	writer := export.NewOSWriter()
	if opts.FS != nil {
		writer = &export.FSWriter{FS: opts.FS}
	}
	a.Registry, _ = tools.NewRegistryWith(tools.Deps{
		Cache:       c,
		Client:      a.Client,
		Coordinator: a.Coordinator,
		Preloader:   a.Preloader,
		Counters:    a.Counters,
		Writer:      writer,
		Aggregator:  &bulk.Aggregator{Concurrent: cfg.Bulk.Concurrent, Logger: logs.For("bulk")},
		Logger:      logs.For("tools"),
	})

	a.Server = mcp.NewServer(a.Registry, a.Preloader, logs.Debug("mcp"), logs.Debugging())
	a.logger.Printf("configured: %s", cfg)
	return a, nil
}

/*
Serve runs the protocol on in/out until in closes or ctx is done.

Alongside it, in the background:
  - the resource snapshot is warmed, and a permission problem is reported early
  - the OmniFocus database directory is watched, when enabled
*/
func (a *App) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.warmed = make(chan struct{})
	go a.warm(ctx)

	if a.Config.Watch.Enabled {
		w := &watch.Watcher{
			Path:     a.Config.Watch.Path,
			Debounce: a.Config.Watch.Debounce,
			OnChange: a.Coordinator.InvalidateAll,
			Logger:   a.logs.For("watch"),
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				a.logger.Printf("watch disabled: %v", err)
			}
		}()
	}

	// A blocked read only ends when the input closes.
	if c, ok := in.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			_ = c.Close()
		}()
	}

	a.logger.Print("serving on stdio")
	err := a.Server.Run(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) warm(ctx context.Context) {
	defer close(a.warmed)

	if err := a.Client.Ping(ctx); err != nil {
		if omnifocus.IsKind(err, omnifocus.KindPermission) {
			a.logger.Printf("automation permission missing: %v", err)
		} else {
			a.logger.Printf("OmniFocus not reachable yet: %v", err)
		}
		return
	}
	if err := a.Preloader.Preload(ctx); err != nil {
		a.logger.Printf("preload: %v", err)
	}
}

// Close releases the cache and the backend connection.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
