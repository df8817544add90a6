// Package config loads the server configuration: defaults, then an optional YAML file, then
// OFMCP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/backend"
	evict "github.com/krisalay/omnifocus-mcp-cache/eviction"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const EnvPrefix = "OFMCP"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	Resources ResourcesConfig `mapstructure:"resources"`
	OmniFocus OmniFocusConfig `mapstructure:"omnifocus"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Log       LogConfig       `mapstructure:"log"`
}

type CacheConfig struct {
	Backend    string                   `mapstructure:"backend"`
	DefaultTTL time.Duration            `mapstructure:"default_ttl"`
	TTL        map[string]time.Duration `mapstructure:"ttl"`
	MaxEntries int                      `mapstructure:"max_entries"`
	Eviction   string                   `mapstructure:"eviction"`
	Redis      RedisConfig              `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
	Prefix   string        `mapstructure:"prefix"`
	Grace    time.Duration `mapstructure:"grace"`
}

type ResourcesConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	PreloadTimeout  time.Duration `mapstructure:"preload_timeout"`
}

type OmniFocusConfig struct {
	Osascript string        `mapstructure:"osascript"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BulkConfig struct {
	Concurrent bool `mapstructure:"concurrent"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Debug      bool   `mapstructure:"debug"`
}

// Every key needs a default: AutomaticEnv only overrides keys viper already knows.
var defaults = map[string]any{
	"cache.backend":              string(backend.Memory),
	"cache.default_ttl":          "5m",
	"cache.ttl.tasks":            "5m",
	"cache.ttl.projects":         "10m",
	"cache.ttl.tags":             "20m",
	"cache.ttl.analytics":        "1h",
	"cache.ttl.today":            "1m",
	"cache.max_entries":          0,
	"cache.eviction":             string(evict.LRU),
	"cache.redis.addr":           "localhost:6379",
	"cache.redis.db":             0,
	"cache.redis.password":       "",
	"cache.redis.prefix":         "ofmcp",
	"cache.redis.grace":          "30s",
	"resources.freshness_window": "5m",
	"resources.preload_timeout":  "60s",
	"omnifocus.osascript":        "osascript",
	"omnifocus.timeout":          "2m",
	"bulk.concurrent":            false,
	"watch.enabled":              false,
	"watch.path":                 defaultWatchPath(),
	"watch.debounce":             "2s",
	"log.file":                   "",
	"log.max_size_mb":            10,
	"log.max_backups":            3,
	"log.max_age_days":           28,
	"log.debug":                  false,
}

func defaultWatchPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Containers", "com.omnigroup.OmniFocus3", "Data",
		"Library", "Application Support", "OmniFocus", "OmniFocus.ofocus")
}

// DefaultPath is ~/.omnifocus-mcp/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".omnifocus-mcp", "config.yaml")
}

/*
Load builds the configuration.

BEHAVIOR:
---------
- path == "": DefaultPath() is read if it exists, silently skipped otherwise
- path != "": the file must exist and parse
- OFMCP_CACHE_BACKEND style variables override both
- the result is validated
*/
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if ok, _ := afero.Exists(fs, path); ok || explicit {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch backend.Kind(strings.ToLower(c.Cache.Backend)) {
	case backend.Memory, backend.Ristretto, backend.GCache, backend.Redis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries: must not be negative"))
	}
	if c.Cache.MaxEntries > 0 && !c.evictionValid() {
		errs = append(errs, fmt.Errorf("cache.eviction: unknown policy %q", c.Cache.Eviction))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl: must be positive"))
	}
	for name, ttl := range c.Cache.TTL {
		if err := types.Category(name).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cache.ttl.%s: %w", name, err))
		}
		if ttl < 0 {
			errs = append(errs, fmt.Errorf("cache.ttl.%s: must not be negative", name))
		}
	}
	if c.Resources.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("resources.freshness_window: must be positive"))
	}
	if c.Watch.Enabled && c.Watch.Path == "" {
		errs = append(errs, errors.New("watch.path: required when watch.enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) evictionValid() bool {
	e := strings.ToUpper(c.Cache.Eviction)
	if backend.Kind(strings.ToLower(c.Cache.Backend)) == backend.GCache && e == "ARC" {
		return true
	}
	return evict.PolicyType(e).Valid()
}

// TTLs returns the per-category lifetimes.
func (c *Config) TTLs() map[types.Category]time.Duration {
	out := make(map[types.Category]time.Duration, len(c.Cache.TTL))
	for name, ttl := range c.Cache.TTL {
		out[types.Category(name)] = ttl
	}
	return out
}

func (c *Config) Backend() backend.Config {
	return backend.Config{
		Kind:       backend.Kind(strings.ToLower(c.Cache.Backend)),
		MaxEntries: c.Cache.MaxEntries,
		Eviction:   strings.ToUpper(c.Cache.Eviction),
		Redis: backend.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			Prefix:   c.Cache.Redis.Prefix,
			Grace:    c.Cache.Redis.Grace,
		},
	}
}

// EvictionPolicy is the policy the memory backend enforces.
func (c *Config) EvictionPolicy() evict.PolicyType {
	return evict.PolicyType(strings.ToUpper(c.Cache.Eviction))
}

// String masks the redis password.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "backend=%s default_ttl=%s max_entries=%d eviction=%s",
		c.Cache.Backend, c.Cache.DefaultTTL, c.Cache.MaxEntries, c.Cache.Eviction)
	if strings.EqualFold(c.Cache.Backend, string(backend.Redis)) {
		pw := "(empty)"
		if c.Cache.Redis.Password != "" {
			pw = "********"
		}
		fmt.Fprintf(&sb, " redis=%s/%d password=%s", c.Cache.Redis.Addr, c.Cache.Redis.DB, pw)
	}
	fmt.Fprintf(&sb, " freshness_window=%s watch=%t", c.Resources.FreshnessWindow, c.Watch.Enabled)
	return sb.String()
}
