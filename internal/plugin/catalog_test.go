package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/tokens"
)

type staticCondition bool

func (s staticCondition) Evaluate(context.Context, *tokens.Context) (bool, error) {
	return bool(s), nil
}

type noopAction struct{}

func (noopAction) Execute(context.Context, *Env) (Outcome, error) { return Continue(), nil }

func conditionFactory(spec Spec) (any, error) {
	var cfg struct {
		Result bool `config:"result"`
	}
	if err := DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	return staticCondition(cfg.Result), nil
}

func TestCatalog_RegisterAndInstantiate(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(KindCondition, "static", conditionFactory, Metadata{Label: "Static"}))

	cond, err := c.Condition("static", ir.Map{"result": ir.Bool(true)})
	require.NoError(t, err)
	ok, err := cond.Evaluate(context.Background(), tokens.New())
	require.NoError(t, err)
	assert.True(t, ok)

	// Nil config is treated as empty.
	cond, err = c.Condition("static", nil)
	require.NoError(t, err)
	ok, _ = cond.Evaluate(context.Background(), tokens.New())
	assert.False(t, ok)
}

func TestCatalog_NotFound(t *testing.T) {
	c := NewCatalog()
	_, err := c.Instantiate(KindAction, "missing", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, KindAction, nf.Kind)
	assert.Equal(t, "missing", nf.ID)
	assert.Contains(t, err.Error(), `action plugin "missing" not found`)
}

func TestCatalog_KindsAreSeparate(t *testing.T) {
	c := NewCatalog()
	c.MustRegister(KindCondition, "x", conditionFactory, Metadata{})

	assert.True(t, c.Has(KindCondition, "x"))
	assert.False(t, c.Has(KindAction, "x"))
	_, err := c.Action("x", nil)
	assert.True(t, IsNotFound(err))
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := NewCatalog()
	factory := func(Spec) (any, error) { return noopAction{}, nil }

	assert.Error(t, c.Register("bogus", "a", factory, Metadata{}))
	assert.Error(t, c.Register(KindAction, "", factory, Metadata{}))
	assert.Error(t, c.Register(KindAction, "a", nil, Metadata{}))

	require.NoError(t, c.Register(KindAction, "a", factory, Metadata{}))
	err := c.Register(KindAction, "a", factory, Metadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Panics(t, func() { c.MustRegister(KindAction, "a", factory, Metadata{}) })
}

func TestCatalog_FactoryErrors(t *testing.T) {
	c := NewCatalog()
	c.MustRegister(KindAction, "broken", func(Spec) (any, error) {
		return nil, errors.New("bad config")
	}, Metadata{})
	c.MustRegister(KindAction, "wrong-type", func(Spec) (any, error) {
		return staticCondition(true), nil
	}, Metadata{})

	_, err := c.Action("broken", nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.False(t, IsNotFound(err))

	_, err = c.Action("wrong-type", nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestCatalog_Definitions(t *testing.T) {
	c := NewCatalog()
	factory := func(Spec) (any, error) { return noopAction{}, nil }
	c.MustRegister(KindAction, "b", factory, Metadata{Label: "B"})
	c.MustRegister(KindAction, "a", factory, Metadata{Label: "A"})
	c.MustRegister(KindCondition, "z", conditionFactory, Metadata{Label: "Z"})

	defs := c.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, Definition{Kind: KindAction, ID: "a", Metadata: Metadata{Label: "A"}}, defs[0])
	assert.Equal(t, "b", defs[1].ID)
	assert.Equal(t, KindCondition, defs[2].Kind)
}

func TestCatalog_ConcurrentReads(t *testing.T) {
	c := NewCatalog()
	c.MustRegister(KindCondition, "static", conditionFactory, Metadata{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := c.Condition("static", ir.Map{"result": ir.Bool(true)})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		Path   string   `config:"path"`
		Count  int      `config:"count"`
		Strict bool     `config:"strict"`
		Tags   []string `config:"tags"`
	}
	err := DecodeConfig(ir.Map{
		"path":   ir.String("user.name"),
		"count":  ir.String("3"),
		"strict": ir.Bool(true),
		"tags":   ir.String("a,b"),
	}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "user.name", cfg.Path)
	assert.Equal(t, 3, cfg.Count)
	assert.True(t, cfg.Strict)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)

	err = DecodeConfig(ir.Map{"count": ir.String("many")}, &cfg)
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	assert.False(t, Continue().Aborted())
	assert.Equal(t, "continue", Continue().String())

	o := Abort("stop")
	assert.True(t, o.Aborted())
	assert.Equal(t, "stop", o.Reason())
	assert.Equal(t, "abort(stop)", o.String())
}
