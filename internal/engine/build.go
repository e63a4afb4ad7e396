package engine

import (
	"fmt"
	"log/slog"

	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
	"github.com/studiospace/plankit/internal/quadtree"
)

// PrepareSpaces validates a floor's spaces and returns the set of valid
// ones. Invalid or duplicate spaces are logged and skipped so that one bad
// polygon does not keep the rest of the floor from being served.
func PrepareSpaces(f *plan.Floor, minArea float64) (*plan.PolygonSet, int) {
	valid := make([]plan.Space, 0, len(f.Spaces))
	seen := make(map[string]struct{}, len(f.Spaces))
	skipped := 0
	for _, sp := range f.Spaces {
		if _, dup := seen[sp.ID]; dup || sp.ID == "" {
			slog.Warn("skipping space with missing or duplicate id", "floor", f.ID, "space", sp.ID)
			skipped++
			continue
		}
		if err := geometry.Validate(sp.Polygon(), minArea); err != nil {
			slog.Warn("skipping invalid space", "floor", f.ID, "space", sp.ID, "error", err)
			skipped++
			continue
		}
		seen[sp.ID] = struct{}{}
		valid = append(valid, sp)
	}

	// All ids are unique and all polygons valid, so this cannot fail.
	set, _ := plan.NewPolygonSet(valid)
	return set, skipped
}

// BuildSnapshot builds the spatial index for set. The index root covers the
// floor's pixel bounds and every polygon's bounding box.
func BuildSnapshot(meta FloorMeta, set *plan.PolygonSet, cfg quadtree.Config) (*Snapshot, error) {
	if set == nil {
		set, _ = plan.NewPolygonSet(nil)
	}
	bounds := geometry.Rect(0, 0, meta.Width, meta.Height)
	if meta.Width <= 0 || meta.Height <= 0 {
		bounds = geometry.BoundingBox{}
	}
	bounds = bounds.Union(set.Extent())

	tree, err := quadtree.Build(bounds, cfg, set.Refs())
	if err != nil {
		return nil, fmt.Errorf("build index for floor %s: %w", meta.ID, err)
	}
	return &Snapshot{Floor: meta, Set: set, Index: tree}, nil
}

// BuildFloorSnapshot validates a floor and builds its snapshot.
func BuildFloorSnapshot(f *plan.Floor, minArea float64, cfg quadtree.Config) (*Snapshot, error) {
	set, skipped := PrepareSpaces(f, minArea)
	if skipped > 0 {
		slog.Info("floor loaded with skipped spaces", "floor", f.ID, "valid", set.Len(), "skipped", skipped)
	}
	return BuildSnapshot(MetaOf(f), set, cfg)
}

// MetaOf extracts floor metadata.
func MetaOf(f *plan.Floor) FloorMeta {
	return FloorMeta{ID: f.ID, Name: f.Name, Width: f.Width, Height: f.Height}
}
