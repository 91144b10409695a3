package index

import (
	"sort"
	"time"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// Snapshot is one immutable build of the index together with the compiled
// graphs it routes to. Dispatch resolves entries and graphs against the same
// snapshot.
type Snapshot struct {
	Generation int64
	BuiltAt    time.Time

	entries  []ir.IndexEntry
	exact    map[string][]ir.IndexEntry
	patterns []ir.IndexEntry
	graphs   map[string]*compiler.Graph
	digest   string
}

func emptySnapshot() *Snapshot {
	return newSnapshot(nil, nil)
}

func newSnapshot(entries []ir.IndexEntry, graphs map[string]*compiler.Graph) *Snapshot {
	sortEntries(entries)
	s := &Snapshot{
		entries: entries,
		exact:   make(map[string][]ir.IndexEntry),
		graphs:  graphs,
	}
	if s.graphs == nil {
		s.graphs = make(map[string]*compiler.Graph)
	}
	for _, e := range entries {
		if ir.IsPattern(e.Pattern) {
			s.patterns = append(s.patterns, e)
		} else {
			s.exact[e.Pattern] = append(s.exact[e.Pattern], e)
		}
	}
	digest, err := ir.IndexDigest(entries)
	if err == nil {
		s.digest = digest
	}
	return s
}

// Lookup returns the entries matching a fired host event, ordered by
// priority ascending, then model id, then node id. Exact ids are a map
// lookup; wildcard patterns are matched segment by segment. A node that
// matches through several patterns is returned once.
func (s *Snapshot) Lookup(hostEventID string) []ir.IndexEntry {
	exact := s.exact[hostEventID]
	var matched []ir.IndexEntry
	for _, e := range s.patterns {
		if ir.MatchEvent(e.Pattern, hostEventID) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		out := make([]ir.IndexEntry, len(exact))
		copy(out, exact)
		return out
	}

	out := make([]ir.IndexEntry, 0, len(exact)+len(matched))
	out = append(out, exact...)
	out = append(out, matched...)
	sortEntries(out)

	type nodeKey struct{ model, node string }
	seen := make(map[nodeKey]bool, len(out))
	deduped := out[:0]
	for _, e := range out {
		k := nodeKey{e.ModelID, e.NodeID}
		if seen[k] {
			continue
		}
		seen[k] = true
		deduped = append(deduped, e)
	}
	return deduped
}

// Entries returns every entry in dispatch order.
func (s *Snapshot) Entries() []ir.IndexEntry {
	out := make([]ir.IndexEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Digest is the content digest of the ordered entries. Two snapshots with
// the same entries in the same order have the same digest.
func (s *Snapshot) Digest() string {
	return s.digest
}

// Graph returns the compiled graph of an indexed model.
func (s *Snapshot) Graph(modelID string) (*compiler.Graph, bool) {
	g, ok := s.graphs[modelID]
	return g, ok
}

// Models returns the ids of every indexed model, sorted.
func (s *Snapshot) Models() []string {
	ids := make([]string, 0, len(s.graphs))
	for id := range s.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
