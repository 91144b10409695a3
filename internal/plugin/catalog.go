package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/eca/internal/ir"
)

type key struct {
	kind Kind
	id   string
}

type registration struct {
	factory Factory
	meta    Metadata
}

// Catalog is the plugin registration table.
//
// Registration happens at startup and copies the table; lookups read an
// immutable snapshot through an atomic pointer and never lock.
type Catalog struct {
	mu    sync.Mutex
	table atomic.Pointer[map[key]registration]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	empty := make(map[key]registration)
	c.table.Store(&empty)
	return c
}

// Register adds a plugin. Registering the same (kind, id) twice is an error.
func (c *Catalog) Register(kind Kind, id string, factory Factory, meta Metadata) error {
	if !kind.Valid() {
		return fmt.Errorf("register %q: invalid plugin kind %q", id, kind)
	}
	if id == "" {
		return fmt.Errorf("register %s plugin: empty id", kind)
	}
	if factory == nil {
		return fmt.Errorf("register %s plugin %q: nil factory", kind, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.table.Load()
	k := key{kind, id}
	if _, exists := old[k]; exists {
		return fmt.Errorf("register %s plugin %q: already registered", kind, id)
	}
	next := make(map[key]registration, len(old)+1)
	for kk, v := range old {
		next[kk] = v
	}
	next[k] = registration{factory: factory, meta: meta}
	c.table.Store(&next)
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(kind Kind, id string, factory Factory, meta Metadata) {
	if err := c.Register(kind, id, factory, meta); err != nil {
		panic(err)
	}
}

// Has reports whether (kind, id) is registered.
func (c *Catalog) Has(kind Kind, id string) bool {
	_, ok := (*c.table.Load())[key{kind, id}]
	return ok
}

// Instantiate builds a configured instance of (kind, id). Unknown plugins
// return *NotFoundError; factories that reject their config return
// *ConfigError.
func (c *Catalog) Instantiate(kind Kind, id string, config ir.Map) (any, error) {
	reg, ok := (*c.table.Load())[key{kind, id}]
	if !ok {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}
	if config == nil {
		config = ir.Map{}
	}
	inst, err := reg.factory(Spec{Kind: kind, ID: id, Config: config, Catalog: c})
	if err != nil {
		return nil, &ConfigError{Kind: kind, ID: id, Err: err}
	}
	if !implements(kind, inst) {
		return nil, &ConfigError{Kind: kind, ID: id, Err: fmt.Errorf("factory returned %T", inst)}
	}
	return inst, nil
}

// Event instantiates an event plugin.
func (c *Catalog) Event(id string, config ir.Map) (EventPlugin, error) {
	inst, err := c.Instantiate(KindEvent, id, config)
	if err != nil {
		return nil, err
	}
	return inst.(EventPlugin), nil
}

// Condition instantiates a condition plugin.
func (c *Catalog) Condition(id string, config ir.Map) (ConditionPlugin, error) {
	inst, err := c.Instantiate(KindCondition, id, config)
	if err != nil {
		return nil, err
	}
	return inst.(ConditionPlugin), nil
}

// Action instantiates an action plugin.
func (c *Catalog) Action(id string, config ir.Map) (ActionPlugin, error) {
	inst, err := c.Instantiate(KindAction, id, config)
	if err != nil {
		return nil, err
	}
	return inst.(ActionPlugin), nil
}

// Definitions lists every registered plugin sorted by kind, then id.
func (c *Catalog) Definitions() []Definition {
	table := *c.table.Load()
	defs := make([]Definition, 0, len(table))
	for k, reg := range table {
		defs = append(defs, Definition{Kind: k.kind, ID: k.id, Metadata: reg.meta})
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Kind != defs[j].Kind {
			return defs[i].Kind < defs[j].Kind
		}
		return defs[i].ID < defs[j].ID
	})
	return defs
}

func implements(kind Kind, inst any) bool {
	switch kind {
	case KindEvent:
		_, ok := inst.(EventPlugin)
		return ok
	case KindCondition:
		_, ok := inst.(ConditionPlugin)
		return ok
	case KindAction:
		_, ok := inst.(ActionPlugin)
		return ok
	}
	return false
}

// NotFoundError is returned for an unregistered plugin id.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s plugin %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConfigError is returned when a plugin rejects its configuration.
type ConfigError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s plugin %q: invalid config: %v", e.Kind, e.ID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// DecodeConfig decodes a node config map into target using the "config"
// struct tag. Strings are weakly converted to numbers and booleans.
func DecodeConfig(config ir.Map, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "config",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	var input map[string]any
	if config != nil {
		input, _ = ir.ToGo(config).(map[string]any)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
