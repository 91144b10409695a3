package ir

import "strings"

// Host event identifiers are colon-separated paths such as
// "entity:node:insert". A pattern may use "*" in place of any single
// segment: "entity:*:insert" matches "entity:node:insert" but neither
// "entity:insert" nor "entity:node:revision:insert".
const (
	EventSeparator = ":"
	EventWildcard  = "*"
)

// IsPattern reports whether id contains a wildcard segment.
func IsPattern(id string) bool {
	for _, seg := range strings.Split(id, EventSeparator) {
		if seg == EventWildcard {
			return true
		}
	}
	return false
}

// MatchEvent reports whether the host event id matches pattern.
// A pattern without wildcards matches only itself.
func MatchEvent(pattern, id string) bool {
	if pattern == id {
		return true
	}
	ps := strings.Split(pattern, EventSeparator)
	is := strings.Split(id, EventSeparator)
	if len(ps) != len(is) {
		return false
	}
	for i, seg := range ps {
		if seg != EventWildcard && seg != is[i] {
			return false
		}
	}
	return true
}
