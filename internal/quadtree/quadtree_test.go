package quadtree

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiospace/plankit/internal/geometry"
)

func box(x, y, w, h float64) geometry.BoundingBox { return geometry.Rect(x, y, w, h) }

func ids(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func TestLeafSplitsOnlyPastCapacity(t *testing.T) {
	tree := New(box(0, 0, 100, 100), Config{Capacity: 4, MaxDepth: 5})
	for i := 0; i < 4; i++ {
		require.NoError(t, tree.Insert(Ref{ID: fmt.Sprint(i), Rank: uint64(i), BBox: box(float64(i)*20, 10, 5, 5)}))
	}
	assert.Equal(t, 1, tree.Stats().Nodes)

	require.NoError(t, tree.Insert(Ref{ID: "4", Rank: 4, BBox: box(80, 80, 5, 5)}))
	st := tree.Stats()
	assert.Equal(t, 5, st.Nodes)
	assert.Equal(t, 4, st.Leaves)
	assert.Equal(t, 1, st.Depth)
}

func TestDepthIsBounded(t *testing.T) {
	cfg := Config{Capacity: 2, MaxDepth: 3}
	tree := New(box(0, 0, 64, 64), cfg)
	for i := 0; i < 50; i++ {
		require.NoError(t, tree.Insert(Ref{ID: fmt.Sprint(i), Rank: uint64(i), BBox: box(1, 1, 0.5, 0.5)}))
	}
	st := tree.Stats()
	assert.LessOrEqual(t, st.Depth, cfg.MaxDepth)
	assert.Equal(t, 50, st.MaxLeaf)
	assert.Len(t, tree.Query(geometry.Pt(1.2, 1.2)), 50)
}

func TestSpanningReferenceReachableFromEveryLeaf(t *testing.T) {
	tree := New(box(0, 0, 100, 100), Config{Capacity: 1, MaxDepth: 4})
	require.NoError(t, tree.Insert(Ref{ID: "small", Rank: 1, BBox: box(1, 1, 2, 2)}))
	require.NoError(t, tree.Insert(Ref{ID: "wide", Rank: 2, BBox: box(10, 40, 80, 20)}))

	for _, p := range []geometry.Point{{15, 45}, {85, 45}, {15, 55}, {85, 55}, {50, 50}} {
		assert.Contains(t, ids(tree.Query(p)), "wide", "point %v", p)
	}
	assert.NotContains(t, ids(tree.Query(geometry.Pt(85, 55))), "small")
}

func TestQueryOrdersByRankWithoutDuplicates(t *testing.T) {
	tree := New(box(0, 0, 100, 100), Config{Capacity: 1, MaxDepth: 3})
	require.NoError(t, tree.Insert(Ref{ID: "a", Rank: 1, BBox: box(0, 0, 100, 100)}))
	require.NoError(t, tree.Insert(Ref{ID: "c", Rank: 3, BBox: box(40, 40, 20, 20)}))
	require.NoError(t, tree.Insert(Ref{ID: "b", Rank: 2, BBox: box(25, 25, 50, 50)}))

	// (50, 50) sits on the split lines of several levels.
	assert.Equal(t, []string{"c", "b", "a"}, ids(tree.Query(geometry.Pt(50, 50))))
}

func TestQueryEmptyAndOutside(t *testing.T) {
	tree := New(box(0, 0, 10, 10), DefaultConfig())
	assert.Empty(t, tree.Query(geometry.Pt(5, 5)))

	require.NoError(t, tree.Insert(Ref{ID: "a", Rank: 1, BBox: box(0, 0, 10, 10)}))
	assert.Empty(t, tree.Query(geometry.Pt(-1, 5)))
	assert.Len(t, tree.Query(geometry.Pt(5, 5)), 1)
}

func TestInsertOutOfBounds(t *testing.T) {
	tree := New(box(0, 0, 10, 10), DefaultConfig())
	err := tree.Insert(Ref{ID: "far", BBox: box(20, 20, 1, 1)})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 0, tree.Len())
}

func TestRebuildIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	refs := make([]Ref, 60)
	for i := range refs {
		refs[i] = Ref{
			ID:   fmt.Sprintf("s%02d", i),
			Rank: uint64(i + 1),
			BBox: box(rng.Float64()*900, rng.Float64()*900, 20+rng.Float64()*80, 20+rng.Float64()*80),
		}
	}
	bounds := box(0, 0, 1000, 1000)
	base, err := Build(bounds, DefaultConfig(), refs)
	require.NoError(t, err)

	probes := make([]geometry.Point, 200)
	for i := range probes {
		probes[i] = geometry.Pt(rng.Float64()*1000, rng.Float64()*1000)
	}

	for round := 0; round < 5; round++ {
		shuffled := append([]Ref(nil), refs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		tree, err := Build(bounds, DefaultConfig(), shuffled)
		require.NoError(t, err)
		for _, p := range probes {
			assert.Equal(t, ids(base.Query(p)), ids(tree.Query(p)), "probe %v round %d", p, round)
		}
	}
}

func TestCandidateSetIsSublinear(t *testing.T) {
	const n = 500
	bounds := box(0, 0, 1000, 1000)

	// 25 x 20 grid of hexagon bounding boxes spread across the plan.
	refs := make([]Ref, 0, n)
	cw, ch := 1000.0/25, 1000.0/20
	for row := 0; row < 20; row++ {
		for col := 0; col < 25; col++ {
			cx, cy := (float64(col)+0.5)*cw, (float64(row)+0.5)*ch
			hex := make(geometry.Polygon, 6)
			for k := range hex {
				a := math.Pi / 3 * float64(k)
				hex[k] = geometry.Pt(cx+0.45*cw*math.Cos(a), cy+0.45*ch*math.Sin(a))
			}
			bb, err := geometry.BoundingBoxOf(hex)
			require.NoError(t, err)
			refs = append(refs, Ref{ID: fmt.Sprintf("r%d-c%d", row, col), Rank: uint64(len(refs) + 1), BBox: bb})
		}
	}
	require.Len(t, refs, n)

	tree, err := Build(bounds, DefaultConfig(), refs)
	require.NoError(t, err)

	st := tree.Stats()
	assert.LessOrEqual(t, st.Depth, DefaultConfig().MaxDepth)
	assert.Greater(t, st.Leaves, 1)

	rng := rand.New(rand.NewSource(1))
	worst := 0
	for i := 0; i < 500; i++ {
		p := geometry.Pt(rng.Float64()*1000, rng.Float64()*1000)
		worst = max(worst, len(tree.Query(p)))
	}
	assert.Less(t, worst, n/10, "candidate set should be a small fraction of %d", n)
}
