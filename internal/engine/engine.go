package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/studiospace/plankit/internal/plan"
	"github.com/studiospace/plankit/internal/quadtree"
)

// ErrStaleSnapshot is returned when a commit was prepared against a snapshot
// that has since been replaced.
var ErrStaleSnapshot = errors.New("snapshot replaced since edit began")

// Config configures an Engine and the sessions it creates.
type Config struct {
	Index          quadtree.Config
	Transform      TransformConfig
	Coordinator    CoordinatorConfig
	MinPolygonArea float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Index:          quadtree.DefaultConfig(),
		Transform:      DefaultTransformConfig(),
		Coordinator:    DefaultCoordinatorConfig(),
		MinPolygonArea: 1,
	}
}

// Engine serves hit tests for one floor. It owns the published snapshot;
// loads and commits replace it atomically and readers never lock.
type Engine struct {
	floorID string
	cfg     Config
	obs     Observer

	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64

	// Default view session for callers without their own (HTTP probe,
	// wasm bridge).
	session *Coordinator
}

// New creates an engine with an empty snapshot.
func New(floorID string, cfg Config, obs Observer) *Engine {
	if obs == nil {
		obs = logObserver{}
	}
	e := &Engine{floorID: floorID, cfg: cfg, obs: obs}
	empty, _ := BuildSnapshot(FloorMeta{ID: floorID}, nil, cfg.Index)
	e.snap.Store(empty)
	e.session = e.NewSession(nil)
	return e
}

// FloorID returns the floor this engine serves.
func (e *Engine) FloorID() string { return e.floorID }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Snapshot returns the latest published snapshot. It is never nil.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// Publish makes s the current snapshot unconditionally and stamps its
// version.
func (e *Engine) Publish(s *Snapshot) {
	s.Version = e.version.Add(1)
	e.snap.Store(s)
	e.obs.ObservePublish(s)
}

// CompareAndPublish publishes next only if base is still current.
func (e *Engine) CompareAndPublish(base, next *Snapshot) error {
	next.Version = e.version.Add(1)
	if !e.snap.CompareAndSwap(base, next) {
		return fmt.Errorf("publish floor %s: %w", e.floorID, ErrStaleSnapshot)
	}
	e.obs.ObservePublish(next)
	return nil
}

// LoadFloor validates f, builds its index and publishes it.
func (e *Engine) LoadFloor(f *plan.Floor) (*Snapshot, error) {
	s, err := BuildFloorSnapshot(f, e.cfg.MinPolygonArea, e.cfg.Index)
	if err != nil {
		return nil, err
	}
	e.Publish(s)
	return s, nil
}

// NewSession creates a view session with its own transform. emit receives
// results of samples passed to Submit; it may be nil for synchronous use.
func (e *Engine) NewSession(emit func(HitResult)) *Coordinator {
	opts := []CoordinatorOption{WithObserver(e.obs)}
	if emit != nil {
		opts = append(opts, WithEmitter(emit))
	}
	return NewCoordinator(e, NewManager(e.cfg.Transform), e.cfg.Coordinator, opts...)
}

// Session returns the engine's default view session.
func (e *Engine) Session() *Coordinator { return e.session }

// HitTest resolves a screen point under the default session's transform.
func (e *Engine) HitTest(s Sample) HitResult { return e.session.HitTest(s) }

// Registry holds one engine per floor.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	obs     Observer
	engines map[string]*Engine
}

// NewRegistry creates an empty registry whose engines share cfg and obs.
func NewRegistry(cfg Config, obs Observer) *Registry {
	return &Registry{cfg: cfg, obs: obs, engines: make(map[string]*Engine)}
}

// Get returns the engine for floorID if one exists.
func (r *Registry) Get(floorID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[floorID]
	return e, ok
}

// GetOrCreate returns the engine for floorID, creating an empty one if
// needed.
func (r *Registry) GetOrCreate(floorID string) *Engine {
	if e, ok := r.Get(floorID); ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[floorID]; ok {
		return e
	}
	e := New(floorID, r.cfg, r.obs)
	r.engines[floorID] = e
	return e
}

// FloorIDs returns the ids of all registered floors, sorted.
func (r *Registry) FloorIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
