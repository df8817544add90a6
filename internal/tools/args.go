package tools

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Args are the raw tool-call arguments. Accessors coerce the loose types clients send
// ("true" for true, "5" for 5) and fall back to a default when a value is absent.
type Args map[string]any

func (a Args) String(name, def string) string {
	switch v := a[name].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

func (a Args) Required(name string) (string, error) {
	s := a.String(name, "")
	if s == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return s, nil
}

// OptBool returns nil when the argument is absent or not a boolean.
func (a Args) OptBool(name string) *bool {
	var b bool
	switch v := a[name].(type) {
	case bool:
		b = v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

func (a Args) Bool(name string, def bool) bool {
	if b := a.OptBool(name); b != nil {
		return *b
	}
	return def
}

func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Strings accepts a JSON array or a comma separated string.
func (a Args) Strings(name string) []string {
	var out []string
	switch v := a[name].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Time accepts RFC 3339 or a bare YYYY-MM-DD (local midnight).
func (a Args) Time(name string) (*time.Time, error) {
	s := a.String(name, "")
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%s: expected RFC 3339 or YYYY-MM-DD, got %q", name, s)
	}
	return &t, nil
}

// Has reports whether the argument was sent at all.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}
