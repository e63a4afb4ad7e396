// Package loader acquires floor plans off the hit-test path and publishes
// them to engines. A newer load for a floor cancels the older one, and a
// superseded result is discarded even if it arrives late.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/plan"
	"github.com/studiospace/plankit/internal/typeid"
)

// ErrSuperseded is returned for a load replaced by a newer request.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Load outcomes reported to the outcome hook.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// LoadError is a failed plan load.
type LoadError struct {
	FloorID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load floor %s: %v", e.FloorID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Source supplies floors.
type Source interface {
	LoadFloor(ctx context.Context, floorID string) (*plan.Floor, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, floorID string) (*plan.Floor, error)

func (f SourceFunc) LoadFloor(ctx context.Context, floorID string) (*plan.Floor, error) {
	return f(ctx, floorID)
}

type flight struct {
	id     string
	gen    uint64
	cancel context.CancelFunc
}

// Loader runs loads against a Source and publishes results into a Registry.
type Loader struct {
	src     Source
	reg     *engine.Registry
	outcome func(floorID, outcome string)

	mu       sync.Mutex
	gen      uint64
	inflight map[string]*flight
}

// Option configures a Loader.
type Option func(*Loader)

// WithOutcomeHook registers a function called once per finished load.
func WithOutcomeHook(fn func(floorID, outcome string)) Option {
	return func(l *Loader) { l.outcome = fn }
}

// New creates a loader.
func New(src Source, reg *engine.Registry, opts ...Option) *Loader {
	l := &Loader{
		src:      src,
		reg:      reg,
		outcome:  func(string, string) {},
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load starts loading floorID and returns a channel that receives exactly
// one value: nil once the floor is published, ErrSuperseded if a newer load
// replaced this one, or a *LoadError. Any earlier load for the same floor
// is cancelled. On failure the engine keeps serving its previous snapshot.
func (l *Loader) Load(ctx context.Context, floorID string) <-chan error {
	lctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.gen++
	f := &flight{id: typeid.NewLoadID(), gen: l.gen, cancel: cancel}
	if prev, ok := l.inflight[floorID]; ok {
		prev.cancel()
		slog.Debug("cancelled superseded load", "floor", floorID, "load", prev.id)
	}
	l.inflight[floorID] = f
	l.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := l.run(lctx, floorID, f)
		l.report(floorID, f, err)
		done <- err
		close(done)
	}()
	return done
}

// LoadAndWait runs Load and waits for its result.
func (l *Loader) LoadAndWait(ctx context.Context, floorID string) error {
	return <-l.Load(ctx, floorID)
}

// InFlight reports whether a load for floorID is running.
func (l *Loader) InFlight(floorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[floorID]
	return ok
}

func (l *Loader) current(floorID string, f *flight) bool {
	cur, ok := l.inflight[floorID]
	return ok && cur == f
}

func (l *Loader) run(ctx context.Context, floorID string, f *flight) error {
	start := time.Now()
	floor, err := l.src.LoadFloor(ctx, floorID)
	if err == nil && floor == nil {
		err = plan.ErrFloorNotFound
	}
	if err != nil {
		return l.finish(floorID, f, &LoadError{FloorID: floorID, Err: err})
	}
	if floor.ID == "" {
		floor.ID = floorID
	}

	eng := l.reg.GetOrCreate(floorID)
	snap, err := engine.BuildFloorSnapshot(floor, eng.Config().MinPolygonArea, eng.Config().Index)
	if err != nil {
		return l.finish(floorID, f, &LoadError{FloorID: floorID, Err: err})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.current(floorID, f) {
		return ErrSuperseded
	}
	delete(l.inflight, floorID)
	eng.Publish(snap)
	slog.Info("floor published",
		"floor", floorID,
		"load", f.id,
		"spaces", snap.Set.Len(),
		"version", snap.Version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// finish clears the flight after a failure, turning it into ErrSuperseded
// when a newer load already took over.
func (l *Loader) finish(floorID string, f *flight, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.current(floorID, f) {
		return ErrSuperseded
	}
	delete(l.inflight, floorID)
	return err
}

func (l *Loader) report(floorID string, f *flight, err error) {
	switch {
	case err == nil:
		l.outcome(floorID, OutcomeOK)
	case errors.Is(err, ErrSuperseded):
		slog.Debug("discarded superseded load", "floor", floorID, "load", f.id)
		l.outcome(floorID, OutcomeSuperseded)
	default:
		slog.Error("floor load failed", "floor", floorID, "load", f.id, "error", err)
		l.outcome(floorID, OutcomeError)
	}
}
