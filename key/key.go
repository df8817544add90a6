/*
Package key builds cache keys from the parameters that shape a query result.

A key is an operation discriminator plus a set of (name, value) pairs. The encoding is
canonical: pairs are sorted by name and values are JSON encoded, so

	New("list_tags").With("sortBy", "name").With("includeEmpty", true)
	New("list_tags").With("includeEmpty", true).With("sortBy", "name")

produce the same key, while the string "true" and the boolean true never collide.

Every parameter that changes the result MUST be part of the key. Leaving one out lets two
differently-parameterized requests share an entry; adding an irrelevant one only lowers the
hit rate.
*/
package key

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Key is immutable; every With returns a copy.
type Key struct {
	op     string
	params map[string]any
}

// New starts a key for the given operation discriminator.
func New(op string) Key {
	if op == "" {
		panic("key: empty operation")
	}
	return Key{op: op}
}

// With adds or replaces a parameter. The value must be JSON encodable.
func (k Key) With(name string, value any) Key {
	if name == "" {
		panic("key: empty parameter name")
	}
	params := make(map[string]any, len(k.params)+1)
	for n, v := range k.params {
		params[n] = v
	}
	params[name] = value
	return Key{op: k.op, params: params}
}

// WithSet adds a set-valued parameter: order and duplicates do not matter.
func (k Key) WithSet(name string, values []string) Key {
	set := slices.Clone(values)
	slices.Sort(set)
	return k.With(name, slices.Compact(set))
}

// String renders the canonical form, e.g. `list_tags{"includeEmpty":true,"sortBy":"name"}`.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.op)
	if len(k.params) == 0 {
		return b.String()
	}
	// encoding/json writes map keys in sorted order
	raw, err := json.Marshal(k.params)
	if err != nil {
		panic(fmt.Sprintf("key: parameters of %q are not encodable: %v", k.op, err))
	}
	b.Write(raw)
	return b.String()
}
