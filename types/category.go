package types

import (
	"errors"
	"fmt"
)

/*
Category is a logically independent namespace inside the cache.
Every category has its own TTL and can be invalidated without touching the others.
*/
type Category string

const (
	// CategoryTasks holds task queries (list_tasks and friends).
	CategoryTasks Category = "tasks"

	// CategoryProjects holds project listings WITHOUT task counts.
	CategoryProjects Category = "projects"

	// CategoryTags holds tag listings WITHOUT usage statistics.
	CategoryTags Category = "tags"

	// CategoryAnalytics holds everything derived from counting tasks:
	// productivity stats, tag usage statistics, project task counts.
	CategoryAnalytics Category = "analytics"

	// CategoryToday holds the "today's agenda" view. Short TTL.
	CategoryToday Category = "today"
)

// ErrInvalidCategory is the panic value used for malformed category names.
var ErrInvalidCategory = errors.New("invalid cache category")

// BuiltinCategories lists the categories known at compile time.
func BuiltinCategories() []Category {
	return []Category{
		CategoryTasks,
		CategoryProjects,
		CategoryTags,
		CategoryAnalytics,
		CategoryToday,
	}
}

func (c Category) String() string { return string(c) }

/*
Validate checks that the category name is well formed.

RULES:
------
- not empty
- only lowercase ASCII letters, digits, '_' and '-'

Unknown-but-well-formed categories are accepted on purpose, so that new
tools can introduce a namespace without touching the cache.
*/
func (c Category) Validate() error {
	if c == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCategory)
	}
	for _, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
		}
	}
	return nil
}

// MustValidate panics when the category is malformed. A malformed category
// is a programming error: silently continuing would cache data under a
// namespace no invalidation rule knows about.
func (c Category) MustValidate() {
	if err := c.Validate(); err != nil {
		panic(err)
	}
}
