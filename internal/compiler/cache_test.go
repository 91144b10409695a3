package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/plugin/builtin"
)

func TestCache_HitsOnSameContent(t *testing.T) {
	c := NewCache(builtin.NewCatalog())

	a, err := c.Compile(greetModel())
	require.NoError(t, err)
	b, err := c.Compile(greetModel())
	require.NoError(t, err)
	assert.Same(t, a, b)

	hits, misses, size := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, size)

	changed := greetModel()
	changed.Label = "Different"
	d, err := c.Compile(changed)
	require.NoError(t, err)
	assert.NotSame(t, a, d)

	_, _, size = c.Stats()
	assert.Equal(t, 2, size)
}

func TestCache_Retain(t *testing.T) {
	c := NewCache(builtin.NewCatalog())
	a, err := c.Compile(greetModel())
	require.NoError(t, err)

	c.Retain(map[string]bool{})
	_, _, size := c.Stats()
	assert.Equal(t, 0, size)

	b, err := c.Compile(greetModel())
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	c.Retain(map[string]bool{b.Model.Hash: true})
	_, _, size = c.Stats()
	assert.Equal(t, 1, size)
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := NewCache(builtin.NewCatalog())
	raw := greetModel()
	raw.Events[0].Priority = "high"

	_, err := c.Compile(raw)
	require.Error(t, err)
	_, err = c.Compile(raw)
	require.Error(t, err)

	_, misses, size := c.Stats()
	assert.Equal(t, 2, misses)
	assert.Equal(t, 0, size)

	raw.Events[0].Priority = 0.5
	_, err = c.Compile(raw)
	assert.True(t, IsModelError(err))
}
