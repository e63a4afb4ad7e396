// Package floor exposes loaded floors over HTTP: snapshot reads, load
// requests, one-shot hit tests, the default view transform and polygon
// edits.
package floor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/loader"
	"github.com/studiospace/plankit/internal/plan"
)

var (
	ErrNotLoaded      = errors.New("floor not loaded")
	ErrInvalidFloor   = errors.New("invalid floor")
	ErrImportDisabled = errors.New("floor import is not configured")
)

// Importer persists imported floors.
type Importer interface {
	SaveFloor(ctx context.Context, f *plan.Floor) error
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, f *plan.Floor) error

func (fn ImporterFunc) SaveFloor(ctx context.Context, f *plan.Floor) error { return fn(ctx, f) }

type Service struct {
	ctx      context.Context
	registry *engine.Registry
	loader   *loader.Loader
	editor   *editor.Editor
	importer Importer
}

// NewService creates a floor service. Background loads run under ctx.
// importer may be nil, which disables Import.
func NewService(ctx context.Context, reg *engine.Registry, ld *loader.Loader, ed *editor.Editor, importer Importer) *Service {
	return &Service{ctx: ctx, registry: reg, loader: ld, editor: ed, importer: importer}
}

// Summary describes one loaded floor.
type Summary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version uint64 `json:"version"`
	Spaces  int    `json:"spaceCount"`
	Loading bool   `json:"loading"`
}

// View is a floor as currently published.
type View struct {
	Summary
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
	Transform engine.Transform `json:"transform"`
	Outlines  []engine.Outline `json:"spaces"`
}

func (s *Service) engine(floorID string) (*engine.Engine, error) {
	eng, ok := s.registry.Get(floorID)
	if !ok || eng.Snapshot().Version == 0 {
		return nil, fmt.Errorf("floor %s: %w", floorID, ErrNotLoaded)
	}
	return eng, nil
}

func (s *Service) summary(eng *engine.Engine) Summary {
	snap := eng.Snapshot()
	return Summary{
		ID:      eng.FloorID(),
		Name:    snap.Floor.Name,
		Version: snap.Version,
		Spaces:  snap.Set.Len(),
		Loading: s.loader.InFlight(eng.FloorID()),
	}
}

func (s *Service) List() []Summary {
	ids := s.registry.FloorIDs()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if eng, err := s.engine(id); err == nil {
			out = append(out, s.summary(eng))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) Get(floorID string) (*View, error) {
	eng, err := s.engine(floorID)
	if err != nil {
		return nil, err
	}
	snap := eng.Snapshot()
	return &View{
		Summary:   s.summary(eng),
		Width:     snap.Floor.Width,
		Height:    snap.Floor.Height,
		Transform: eng.Session().View().Current(),
		Outlines:  snap.Outlines(),
	}, nil
}

// Load starts a background load of floorID, superseding any load already
// running for it. The returned channel yields the load's result.
func (s *Service) Load(floorID string) <-chan error {
	return s.loader.Load(s.ctx, floorID)
}

// HitTest resolves a screen point. A nil transform uses the floor's
// default view session; otherwise a one-off session with t is used.
func (s *Service) HitTest(floorID string, sample engine.Sample, t *engine.Transform) (engine.HitResult, error) {
	eng, err := s.engine(floorID)
	if err != nil {
		return engine.HitResult{}, err
	}
	if t == nil {
		return eng.HitTest(sample), nil
	}
	session := eng.NewSession(nil)
	if _, err := session.View().Set(*t); err != nil {
		return engine.HitResult{}, err
	}
	return session.HitTest(sample), nil
}

// SetTransform replaces the default view transform of a floor.
func (s *Service) SetTransform(floorID string, t engine.Transform) (engine.Transform, error) {
	eng, err := s.engine(floorID)
	if err != nil {
		return engine.Transform{}, err
	}
	return eng.Session().View().Set(t)
}

// Edit applies ops to one space and commits the result.
func (s *Service) Edit(ctx context.Context, floorID, spaceID string, ops []editor.Op) (*editor.Result, error) {
	eng, err := s.engine(floorID)
	if err != nil {
		return nil, err
	}
	return s.editor.ApplyAndCommit(ctx, eng, spaceID, ops)
}

// Import validates and stores f, then reloads it from the source chain.
func (s *Service) Import(ctx context.Context, f *plan.Floor) (<-chan error, error) {
	if s.importer == nil {
		return nil, ErrImportDisabled
	}
	minArea := s.registry.GetOrCreate(f.ID).Config().MinPolygonArea
	if err := f.Validate(minArea); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFloor, err)
	}
	if err := s.importer.SaveFloor(ctx, f); err != nil {
		return nil, fmt.Errorf("import floor %s: %w", f.ID, err)
	}
	return s.Load(f.ID), nil
}
