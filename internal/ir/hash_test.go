package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelHashStable(t *testing.T) {
	a := Map{"id": String("m"), "events": List{Map{"id": String("e1")}}}
	b := Map{"events": List{Map{"id": String("e1")}}, "id": String("m")}
	assert.Equal(t, MustModelHash(a), MustModelHash(b))
	assert.Len(t, MustModelHash(a), 64)
}

func TestModelHashChangesWithContent(t *testing.T) {
	a := Map{"id": String("m"), "label": String("one")}
	b := Map{"id": String("m"), "label": String("two")}
	assert.NotEqual(t, MustModelHash(a), MustModelHash(b))
}

func TestDomainSeparation(t *testing.T) {
	v := List{}
	model, err := ContentHash(DomainModel, v)
	require.NoError(t, err)
	index, err := ContentHash(DomainIndex, v)
	require.NoError(t, err)
	assert.NotEqual(t, model, index)
}

func TestIndexDigestOrderSensitive(t *testing.T) {
	e1 := IndexEntry{Pattern: "user:login", ModelID: "a", NodeID: "e1"}
	e2 := IndexEntry{Pattern: "user:login", ModelID: "b", NodeID: "e1"}

	d1, err := IndexDigest([]IndexEntry{e1, e2})
	require.NoError(t, err)
	d2, err := IndexDigest([]IndexEntry{e2, e1})
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}
