// Package tokens implements the per-invocation token context: a key/value
// scope addressed by dotted paths such as "entity.title".
//
// A Context is created fresh for every invocation and dropped when the
// invocation returns. It is not safe for concurrent use and is never shared
// between invocations, so it carries no locking.
package tokens

import (
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/eca/internal/ir"
)

// Resolver computes a deferred value. ok=false means "absent".
type Resolver func() (value any, ok bool)

// Handle is an opaque host object stored in the context (an entity, a
// request, a user). Handles are traversed with Field when a path continues
// past them.
type Handle interface {
	Field(name string) (any, bool)
}

// Context is the token store of one invocation.
type Context struct {
	values    map[string]any
	resolvers map[string]Resolver
	resolved  map[string]bool
}

// New creates an empty context.
func New() *Context {
	return &Context{
		values:    make(map[string]any),
		resolvers: make(map[string]Resolver),
		resolved:  make(map[string]bool),
	}
}

// NewWith creates a context seeded with entries. Keys may be dotted paths.
// Maps and lists are copied, so writes through the context never reach
// entries or anything else that shares its nested values.
func NewWith(entries map[string]any) *Context {
	c := New()
	for _, k := range sortedKeys(entries) {
		c.Set(k, entries[k])
	}
	return c
}

// Set stores a copy of value at path, creating intermediate maps as needed.
// Setting a path overrides any deferred resolver registered for it.
func (c *Context) Set(path string, value any) {
	if path == "" {
		return
	}
	c.dropResolver(path)
	c.store(path, value)
}

// Register installs a deferred resolver for path. The resolver runs at most
// once, on the first Get that reaches it; its result is memoized, including
// an absent result.
func (c *Context) Register(path string, r Resolver) {
	if path == "" || r == nil {
		return
	}
	c.resolvers[path] = r
	delete(c.resolved, path)
}

// Get resolves path. Unresolvable segments yield ok=false, never an error.
func (c *Context) Get(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segs := strings.Split(path, ".")

	// Longest registered prefix wins: "entity" may be deferred while
	// "entity.title" is read.
	for i := len(segs); i > 0; i-- {
		prefix := strings.Join(segs[:i], ".")
		if _, ok := c.resolvers[prefix]; ok {
			c.resolve(prefix)
			break
		}
	}

	root, ok := c.values[segs[0]]
	if !ok {
		return nil, false
	}
	return walk(root, segs[1:])
}

// Has reports whether path resolves to a value.
func (c *Context) Has(path string) bool {
	_, ok := c.Get(path)
	return ok
}

// Clear removes the value at path and any resolver registered for it.
// Clearing a missing path is a no-op.
func (c *Context) Clear(path string) {
	c.dropResolver(path)
	segs := strings.Split(path, ".")
	if len(segs) == 1 {
		delete(c.values, path)
		return
	}
	parent, ok := walk(c.values[segs[0]], segs[1:len(segs)-1])
	if !ok {
		return
	}
	if m, ok := parent.(map[string]any); ok {
		delete(m, segs[len(segs)-1])
	}
}

// Keys returns the sorted top-level keys, including unresolved deferred ones.
func (c *Context) Keys() []string {
	seen := make(map[string]bool, len(c.values)+len(c.resolvers))
	for k := range c.values {
		seen[k] = true
	}
	for k := range c.resolvers {
		seen[strings.SplitN(k, ".", 2)[0]] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot resolves every deferred value and returns a copy of the top-level
// map. Nested maps are shared with the context; callers must not mutate them.
func (c *Context) Snapshot() map[string]any {
	for path := range c.resolvers {
		c.resolve(path)
	}
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Field lets a Context be nested inside another one as a Handle.
func (c *Context) Field(name string) (any, bool) {
	return c.Get(name)
}

func (c *Context) resolve(path string) {
	if c.resolved[path] {
		return
	}
	c.resolved[path] = true
	r := c.resolvers[path]
	v, ok := r()
	if !ok {
		return
	}
	// Write through without dropping the memo, so a resolver is never run twice.
	c.store(path, v)
}

// store writes a copy of value at path. Every map on the path belongs to
// this context: values enter only through store, which copies them.
func (c *Context) store(path string, value any) {
	value = clone(value)
	segs := strings.Split(path, ".")
	if len(segs) == 1 {
		c.values[path] = value
		return
	}
	cur, ok := c.values[segs[0]].(map[string]any)
	if !ok {
		cur = make(map[string]any)
		c.values[segs[0]] = cur
	}
	for _, seg := range segs[1 : len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// clone deep-copies the mutable Go containers a payload can carry. IR
// values, handles and nested contexts are never written through, so they
// are kept as they are.
func clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = clone(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func (c *Context) dropResolver(path string) {
	delete(c.resolvers, path)
	delete(c.resolved, path)
}

func walk(cur any, segs []string) (any, bool) {
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg string) (any, bool) {
	switch v := cur.(type) {
	case map[string]any:
		next, ok := v[seg]
		return next, ok
	case ir.Map:
		next, ok := v[seg]
		if !ok {
			return nil, false
		}
		return ir.ToGo(next), true
	case map[string]string:
		next, ok := v[seg]
		return next, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	case []string:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	case ir.List:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return ir.ToGo(v[i]), true
	case Handle:
		return v.Field(seg)
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
