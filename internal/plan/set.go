package plan

import (
	"fmt"

	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/quadtree"
)

// Entry is one indexed space together with its cached geometry.
type Entry struct {
	Space   Space
	Polygon geometry.Polygon
	BBox    geometry.BoundingBox
}

// PolygonSet is an immutable, validated set of spaces. Every entry carries a
// unique revision; a higher revision means a later commit and wins ties when
// polygons overlap.
type PolygonSet struct {
	entries  []Entry
	byID     map[string]int
	revision uint64
}

// NewPolygonSet validates spaces and stamps them with revisions 1..n in the
// order given. Spaces that already carry a revision keep it, so sets built
// from persisted state preserve commit order.
func NewPolygonSet(spaces []Space) (*PolygonSet, error) {
	s := &PolygonSet{
		entries: make([]Entry, 0, len(spaces)),
		byID:    make(map[string]int, len(spaces)),
	}
	for _, sp := range spaces {
		if _, dup := s.byID[sp.ID]; dup {
			return nil, fmt.Errorf("duplicate space %s", sp.ID)
		}
		if sp.Revision == 0 {
			sp.Revision = s.revision + 1
		}
		e, err := newEntry(sp)
		if err != nil {
			return nil, err
		}
		s.byID[sp.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		s.revision = max(s.revision, sp.Revision)
	}
	return s, nil
}

func newEntry(sp Space) (Entry, error) {
	poly := sp.Polygon()
	bb, err := geometry.BoundingBoxOf(poly)
	if err != nil {
		return Entry{}, fmt.Errorf("space %s: %w", sp.ID, err)
	}
	return Entry{Space: sp, Polygon: poly, BBox: bb}, nil
}

// Len returns the number of spaces in the set.
func (s *PolygonSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Revision returns the highest revision in the set.
func (s *PolygonSet) Revision() uint64 { return s.revision }

// Get looks up a space by id.
func (s *PolygonSet) Get(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Spaces returns a copy of the spaces in set order.
func (s *PolygonSet) Spaces() []Space {
	if s == nil {
		return nil
	}
	out := make([]Space, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Space
		out[i].Vertices = append([][2]float64(nil), e.Space.Vertices...)
	}
	return out
}

// Replace returns a new set in which the space with sp.ID is replaced by sp
// (or appended if absent) and stamped with the next revision. The receiver is
// not modified.
func (s *PolygonSet) Replace(sp Space) (*PolygonSet, error) {
	sp.Revision = s.revision + 1
	e, err := newEntry(sp)
	if err != nil {
		return nil, err
	}

	next := &PolygonSet{
		entries:  make([]Entry, len(s.entries), len(s.entries)+1),
		byID:     make(map[string]int, len(s.entries)+1),
		revision: sp.Revision,
	}
	copy(next.entries, s.entries)
	for id, i := range s.byID {
		next.byID[id] = i
	}
	if i, ok := next.byID[sp.ID]; ok {
		next.entries[i] = e
	} else {
		next.byID[sp.ID] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	return next, nil
}

// Refs returns the quadtree references for every entry.
func (s *PolygonSet) Refs() []quadtree.Ref {
	refs := make([]quadtree.Ref, len(s.entries))
	for i, e := range s.entries {
		refs[i] = quadtree.Ref{ID: e.Space.ID, Rank: e.Space.Revision, BBox: e.BBox}
	}
	return refs
}

// Extent returns the union of every entry's bounding box.
func (s *PolygonSet) Extent() geometry.BoundingBox {
	var b geometry.BoundingBox
	for _, e := range s.entries {
		b = b.Union(e.BBox)
	}
	return b
}
