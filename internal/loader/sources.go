package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/studiospace/plankit/internal/plan"
)

// Chain tries sources in order, moving on only when a source reports
// plan.ErrFloorNotFound.
func Chain(sources ...Source) Source {
	return SourceFunc(func(ctx context.Context, floorID string) (*plan.Floor, error) {
		for _, src := range sources {
			f, err := src.LoadFloor(ctx, floorID)
			if errors.Is(err, plan.ErrFloorNotFound) {
				continue
			}
			return f, err
		}
		return nil, fmt.Errorf("floor %s: %w", floorID, plan.ErrFloorNotFound)
	})
}

// DirSource reads floors from <dir>/<floorID>.yaml (or .yml).
type DirSource struct {
	Dir string
}

// LoadFloor implements Source.
func (d DirSource) LoadFloor(ctx context.Context, floorID string) (*plan.Floor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Dir == "" || floorID == "" || strings.ContainsAny(floorID, `/\`) || strings.HasPrefix(floorID, ".") {
		return nil, fmt.Errorf("floor %q: %w", floorID, plan.ErrFloorNotFound)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(d.Dir, floorID+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read floor %s: %w", floorID, err)
		}
		return DecodeYAML(data, floorID)
	}
	return nil, fmt.Errorf("floor %s: %w", floorID, plan.ErrFloorNotFound)
}

// FloorIDs lists the floors available in the directory.
func (d DirSource) FloorIDs() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list plan dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			ids = append(ids, strings.TrimSuffix(name, ext))
		}
	}
	return ids, nil
}

// DecodeYAML parses a floor document. A missing id defaults to floorID.
func DecodeYAML(data []byte, floorID string) (*plan.Floor, error) {
	var f plan.Floor
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode floor %s: %w", floorID, err)
	}
	if f.ID == "" {
		f.ID = floorID
	}
	return &f, nil
}
