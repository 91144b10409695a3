package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEvent(t *testing.T) {
	tests := []struct {
		pattern string
		id      string
		want    bool
	}{
		{"user:login", "user:login", true},
		{"user:login", "user:logout", false},
		{"entity:*:insert", "entity:node:insert", true},
		{"entity:*:insert", "entity:user:insert", true},
		{"entity:*:insert", "entity:node:update", false},
		{"entity:*:insert", "entity:insert", false},
		{"entity:*:insert", "entity:node:revision:insert", false},
		{"entity:*:*", "entity:node:update", true},
		{"*", "cron", true},
		{"*", "user:login", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchEvent(tt.pattern, tt.id))
		})
	}
}

func TestIsPattern(t *testing.T) {
	assert.True(t, IsPattern("entity:*:insert"))
	assert.False(t, IsPattern("entity:node:insert"))
	assert.False(t, IsPattern("entity:no*de:insert"))
}

func TestLessEntry(t *testing.T) {
	a := IndexEntry{ModelID: "a", NodeID: "e1", Priority: 10}
	b := IndexEntry{ModelID: "b", NodeID: "e1", Priority: 0}
	c := IndexEntry{ModelID: "b", NodeID: "e2", Priority: 0}
	assert.Equal(t, 1, LessEntry(a, b))
	assert.Equal(t, -1, LessEntry(b, c))
	assert.Equal(t, 0, LessEntry(c, c))
}
