package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
)

func inf() float64 { return math.Inf(1) }

type recorder struct {
	mu         sync.Mutex
	published  int
	hits       []HitResult
	overruns   []HitResult
	superseded []uint64
}

func (r *recorder) ObserveHit(h HitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, h)
}

func (r *recorder) ObserveOverrun(h HitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overruns = append(r.overruns, h)
}

func (r *recorder) ObservePublish(*Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published++
}

func (r *recorder) ObserveSuperseded(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.superseded = append(r.superseded, seq)
}

func sq(id string, x, y, size float64) plan.Space {
	return plan.Space{ID: id, Vertices: [][2]float64{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}}
}

func loaded(t *testing.T, obs Observer, spaces ...plan.Space) *Engine {
	t.Helper()
	e := New("floor-1", DefaultConfig(), obs)
	_, err := e.LoadFloor(&plan.Floor{ID: "floor-1", Width: 1000, Height: 1000, Spaces: spaces})
	require.NoError(t, err)
	return e
}

func TestHitTestIdentityScenario(t *testing.T) {
	e := loaded(t, nil, plan.Space{ID: "S1", Vertices: [][2]float64{{100, 100}, {200, 100}, {200, 200}, {100, 200}}})

	assert.Equal(t, "S1", e.HitTest(Sample{X: 150, Y: 150}).SpaceID)
	assert.True(t, e.HitTest(Sample{X: 50, Y: 50}).None())
}

func TestHitTestUnderTransform(t *testing.T) {
	e := loaded(t, nil, sq("S1", 40, 40, 20))
	_, err := e.Session().View().Set(Transform{Scale: 2, TranslateX: 10, TranslateY: 10})
	require.NoError(t, err)

	r := e.HitTest(Sample{X: 110, Y: 110})
	assert.Equal(t, "S1", r.SpaceID)
	assert.Equal(t, geometry.Pt(50, 50), r.Stats.Plan)
}

func TestEmptyIndexIsNoMatch(t *testing.T) {
	e := New("floor-1", DefaultConfig(), nil)
	r := e.HitTest(Sample{X: 1, Y: 1})
	assert.True(t, r.None())
	assert.Zero(t, r.Stats.Candidates)
}

func TestOverlapLaterCommitWins(t *testing.T) {
	e := loaded(t, nil, sq("A", 0, 0, 100), sq("B", 50, 50, 100))
	assert.Equal(t, "B", e.HitTest(Sample{X: 75, Y: 75}).SpaceID)
	assert.Equal(t, "A", e.HitTest(Sample{X: 25, Y: 25}).SpaceID)

	// Re-committing A puts it on top.
	base := e.Snapshot()
	set, err := base.Set.Replace(sq("A", 0, 0, 100))
	require.NoError(t, err)
	next, err := BuildSnapshot(base.Floor, set, e.Config().Index)
	require.NoError(t, err)
	require.NoError(t, e.CompareAndPublish(base, next))
	assert.Equal(t, "A", e.HitTest(Sample{X: 75, Y: 75}).SpaceID)
}

func TestInvalidSpacesSkippedOnLoad(t *testing.T) {
	e := loaded(t, nil,
		sq("ok", 0, 0, 10),
		plan.Space{ID: "line", Vertices: [][2]float64{{0, 0}, {5, 5}}},
		sq("ok", 50, 50, 10),
	)
	s := e.Snapshot()
	assert.Equal(t, 1, s.Set.Len())
	assert.Equal(t, "ok", e.HitTest(Sample{X: 5, Y: 5}).SpaceID)
}

func TestPolygonsOutsideFloorBoundsStillIndexed(t *testing.T) {
	e := New("f", DefaultConfig(), nil)
	_, err := e.LoadFloor(&plan.Floor{ID: "f", Width: 100, Height: 100, Spaces: []plan.Space{sq("far", 500, 500, 10)}})
	require.NoError(t, err)
	assert.Equal(t, "far", e.HitTest(Sample{X: 505, Y: 505}).SpaceID)
}

func TestCompareAndPublishRejectsStaleBase(t *testing.T) {
	e := loaded(t, nil, sq("A", 0, 0, 10))
	base := e.Snapshot()
	_, err := e.LoadFloor(&plan.Floor{ID: "floor-1", Width: 10, Height: 10})
	require.NoError(t, err)

	next, err := BuildSnapshot(base.Floor, base.Set, e.Config().Index)
	require.NoError(t, err)
	assert.ErrorIs(t, e.CompareAndPublish(base, next), ErrStaleSnapshot)
	assert.True(t, e.HitTest(Sample{X: 5, Y: 5}).None())
}

func TestPublishedVersionsIncrease(t *testing.T) {
	rec := &recorder{}
	e := loaded(t, rec, sq("A", 0, 0, 10))
	v1 := e.Snapshot().Version
	_, err := e.LoadFloor(&plan.Floor{ID: "floor-1", Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Greater(t, e.Snapshot().Version, v1)
	assert.Equal(t, 2, rec.published)
}

func TestBudgetOverrunIsObservedOnly(t *testing.T) {
	rec := &recorder{}
	e := loaded(t, rec, sq("A", 0, 0, 100))

	var (
		mu  sync.Mutex
		now = time.Unix(0, 0)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(60 * time.Millisecond)
		return now
	}
	c := NewCoordinator(e, NewManager(DefaultTransformConfig()), DefaultCoordinatorConfig(),
		WithObserver(rec), WithClock(clock))

	first := c.HitTest(Sample{X: 10, Y: 10, TimestampMs: 1000})
	assert.Equal(t, "A", first.SpaceID)
	assert.True(t, first.Stats.FirstInDwell)
	assert.InDelta(t, 60, first.Stats.ElapsedMs, 1e-9)
	assert.True(t, first.Stats.Overrun)

	follow := c.HitTest(Sample{X: 20, Y: 20, TimestampMs: 1016})
	assert.Equal(t, "A", follow.SpaceID)
	assert.False(t, follow.Stats.FirstInDwell)
	assert.False(t, follow.Stats.Overrun)

	again := c.HitTest(Sample{X: 20, Y: 20, TimestampMs: 5000})
	assert.True(t, again.Stats.FirstInDwell)

	assert.Len(t, rec.overruns, 2)
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmitKeepsOnlyLatestSample(t *testing.T) {
	rec := &recorder{}
	e := loaded(t, rec, sq("A", 0, 0, 100), sq("B", 200, 0, 100))

	results := make(chan HitResult, 8)
	c := e.NewSession(func(r HitResult) { results <- r })

	c.Submit(Sample{X: 10, Y: 10, TimestampMs: 1})
	c.Submit(Sample{X: 20, Y: 20, TimestampMs: 2})
	last := c.Submit(Sample{X: 250, Y: 50, TimestampMs: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case r := <-results:
		assert.Equal(t, last, r.Seq)
		assert.Equal(t, "B", r.SpaceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no result emitted")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, results)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, []uint64{last - 2, last - 1}, rec.superseded)
}

func TestSynchronousHitSupersedesQueuedSample(t *testing.T) {
	rec := &recorder{}
	e := loaded(t, rec, sq("A", 0, 0, 100))

	results := make(chan HitResult, 1)
	c := e.NewSession(func(r HitResult) { results <- r })
	queued := c.Submit(Sample{X: 10, Y: 10})
	r := c.HitTest(Sample{X: 20, Y: 20})
	assert.Equal(t, "A", r.SpaceID)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Empty(t, results)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.superseded, queued)
}

func TestConcurrentReadersDuringPublish(t *testing.T) {
	e := loaded(t, nil, sq("A", 0, 0, 100))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Either the old or the new snapshot answers; never a mix.
				id := e.HitTest(Sample{X: 50, Y: 50}).SpaceID
				if id != "A" && id != "B" {
					t.Errorf("unexpected hit %q", id)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		id := "A"
		if i%2 == 0 {
			id = "B"
		}
		_, err := e.LoadFloor(&plan.Floor{ID: "floor-1", Width: 100, Height: 100, Spaces: []plan.Space{sq(id, 0, 0, 100)}})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	a := r.GetOrCreate("b-floor")
	assert.Same(t, a, r.GetOrCreate("b-floor"))
	r.GetOrCreate("a-floor")

	_, ok := r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a-floor", "b-floor"}, r.FloorIDs())
}

func TestOutlines(t *testing.T) {
	e := loaded(t, nil, sq("A", 0, 0, 10))
	out := e.Snapshot().Outlines()
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].SpaceID)
	assert.Len(t, out[0].Polygon, 4)
	assert.Equal(t, uint64(1), out[0].Revision)
}
