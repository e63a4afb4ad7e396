// Package quadtree implements the spatial index used to narrow a plan-space
// point down to the few polygons whose bounding boxes cover it.
//
// Nodes live in a flat arena and reference each other by slot index. A node
// is either a leaf holding polygon references or an internal node owning
// exactly four children; there is no half-split state.
package quadtree

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/studiospace/plankit/internal/geometry"
)

// ErrOutOfBounds is returned when a reference's bounding box does not touch
// the tree's root bounds.
var ErrOutOfBounds = errors.New("bounding box outside index bounds")

// Config bounds the shape of the tree.
type Config struct {
	// Capacity is the number of references a leaf holds before it splits.
	Capacity int
	// MaxDepth is the deepest level a node may have; leaves at this depth
	// grow past Capacity instead of splitting.
	MaxDepth int
}

// DefaultConfig returns the capacity/depth pair tuned for floor plans with a
// few hundred spaces.
func DefaultConfig() Config {
	return Config{Capacity: 10, MaxDepth: 5}
}

// Ref is a polygon reference stored in the index.
type Ref struct {
	ID string
	// Rank orders overlapping candidates; higher ranks are returned first.
	// Callers use the polygon's commit revision.
	Rank uint64
	BBox geometry.BoundingBox
}

type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindInternal
)

type node struct {
	kind   nodeKind
	bounds geometry.BoundingBox
	depth  int

	refs     []int32  // leaf: slots in Tree.refs
	children [4]int32 // internal: slots in Tree.nodes
}

// Tree is a region quadtree over polygon bounding boxes. A Tree is built by
// one goroutine and may then be queried concurrently as long as nothing
// inserts into it.
type Tree struct {
	cfg   Config
	nodes []node
	refs  []Ref
}

// New returns an empty tree covering bounds.
func New(bounds geometry.BoundingBox, cfg Config) *Tree {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	return &Tree{
		cfg:   cfg,
		nodes: []node{{kind: kindLeaf, bounds: bounds}},
	}
}

// Build creates a tree covering bounds and inserts every reference.
func Build(bounds geometry.BoundingBox, cfg Config, refs []Ref) (*Tree, error) {
	t := New(bounds, cfg)
	if err := t.Rebuild(refs); err != nil {
		return nil, err
	}
	return t, nil
}

// Rebuild discards every node and reinserts refs from scratch. On error the
// tree is left empty.
func (t *Tree) Rebuild(refs []Ref) error {
	root := t.nodes[0].bounds
	t.nodes = []node{{kind: kindLeaf, bounds: root}}
	t.refs = make([]Ref, 0, len(refs))

	for _, r := range refs {
		if err := t.Insert(r); err != nil {
			t.nodes = []node{{kind: kindLeaf, bounds: root}}
			t.refs = nil
			return err
		}
	}
	return nil
}

// Insert adds a reference to every leaf whose bounds intersect its bounding
// box, splitting full leaves on the way down.
func (t *Tree) Insert(r Ref) error {
	if !t.nodes[0].bounds.Intersects(r.BBox) {
		return fmt.Errorf("insert %q: %w", r.ID, ErrOutOfBounds)
	}
	slot := int32(len(t.refs))
	t.refs = append(t.refs, r)
	t.insert(0, slot)
	return nil
}

func (t *Tree) insert(ni, slot int32) {
	bbox := t.refs[slot].BBox

	switch t.nodes[ni].kind {
	case kindInternal:
		for _, c := range t.nodes[ni].children {
			if t.nodes[c].bounds.Intersects(bbox) {
				t.insert(c, slot)
			}
		}
	case kindLeaf:
		n := &t.nodes[ni]
		if len(n.refs) < t.cfg.Capacity || n.depth >= t.cfg.MaxDepth {
			n.refs = append(n.refs, slot)
			return
		}
		t.split(ni)
		t.insert(ni, slot)
	}
}

// split turns a leaf into an internal node with four equal children and
// pushes its references down into every child they intersect.
func (t *Tree) split(ni int32) {
	leaf := t.nodes[ni]

	var children [4]int32
	for i, qb := range leaf.bounds.Quadrants() {
		children[i] = int32(len(t.nodes))
		t.nodes = append(t.nodes, node{kind: kindLeaf, bounds: qb, depth: leaf.depth + 1})
	}
	t.nodes[ni] = node{kind: kindInternal, bounds: leaf.bounds, depth: leaf.depth, children: children}

	for _, slot := range leaf.refs {
		t.insert(ni, slot)
	}
}

// Query returns the candidate references for p: every reference stored in a
// leaf whose bounds contain p. Candidates are ordered by descending Rank
// (ties broken by descending ID) and contain no duplicates. The result is a
// superset of the polygons containing p.
func (t *Tree) Query(p geometry.Point) []Ref {
	if len(t.refs) == 0 || !t.nodes[0].bounds.Contains(p) {
		return nil
	}

	var slots []int32
	t.collect(0, p, &slots)
	if len(slots) == 0 {
		return nil
	}

	slices.SortFunc(slots, func(a, b int32) int {
		ra, rb := &t.refs[a], &t.refs[b]
		if c := cmp.Compare(rb.Rank, ra.Rank); c != 0 {
			return c
		}
		if c := strings.Compare(rb.ID, ra.ID); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	slots = slices.Compact(slots)

	out := make([]Ref, len(slots))
	for i, s := range slots {
		out[i] = t.refs[s]
	}
	return out
}

func (t *Tree) collect(ni int32, p geometry.Point, slots *[]int32) {
	n := &t.nodes[ni]
	switch n.kind {
	case kindLeaf:
		*slots = append(*slots, n.refs...)
	case kindInternal:
		for _, c := range n.children {
			if t.nodes[c].bounds.Contains(p) {
				t.collect(c, p, slots)
			}
		}
	}
}

// Bounds returns the root bounds.
func (t *Tree) Bounds() geometry.BoundingBox { return t.nodes[0].bounds }

// Len returns the number of inserted references.
func (t *Tree) Len() int { return len(t.refs) }

// Stats describes the shape of a tree.
type Stats struct {
	Nodes     int
	Leaves    int
	Depth     int
	MaxLeaf   int // largest reference count held by one leaf
	Refs      int
	LeafSlots int // total leaf entries; exceeds Refs when boxes span leaves
}

// Stats walks the arena and reports its shape.
func (t *Tree) Stats() Stats {
	s := Stats{Nodes: len(t.nodes), Refs: len(t.refs)}
	for i := range t.nodes {
		n := &t.nodes[i]
		s.Depth = max(s.Depth, n.depth)
		if n.kind == kindLeaf {
			s.Leaves++
			s.MaxLeaf = max(s.MaxLeaf, len(n.refs))
			s.LeafSlots += len(n.refs)
		}
	}
	return s
}
