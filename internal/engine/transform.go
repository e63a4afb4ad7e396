package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/studiospace/plankit/internal/geometry"
)

// ErrInvalidTransform is returned when a transform would not be invertible.
var ErrInvalidTransform = errors.New("invalid transform")

// Transform maps plan space to screen space: screen = plan*Scale + Translate.
// Scale is always strictly positive, so every Transform is invertible.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

// IdentityTransform returns the transform with scale 1 and no translation.
func IdentityTransform() Transform {
	return Transform{Scale: 1}
}

// NewTransform builds a transform, rejecting non-positive or non-finite
// scale and non-finite translation.
func NewTransform(scale, tx, ty float64) (Transform, error) {
	t := Transform{Scale: scale, TranslateX: tx, TranslateY: ty}
	if err := t.validate(); err != nil {
		return Transform{}, err
	}
	if scale <= 0 {
		return Transform{}, fmt.Errorf("%w: scale %g must be > 0", ErrInvalidTransform, scale)
	}
	return t, nil
}

func (t Transform) validate() error {
	for _, v := range [...]float64{t.Scale, t.TranslateX, t.TranslateY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite component in %+v", ErrInvalidTransform, t)
		}
	}
	return nil
}

// Forward maps a plan point to screen space.
func (t Transform) Forward(p geometry.Point) geometry.Point {
	return geometry.Point{X: p.X*t.Scale + t.TranslateX, Y: p.Y*t.Scale + t.TranslateY}
}

// Inverse maps a screen point to plan space.
func (t Transform) Inverse(s geometry.Point) geometry.Point {
	return geometry.Point{X: (s.X - t.TranslateX) / t.Scale, Y: (s.Y - t.TranslateY) / t.Scale}
}

// Matrix returns the plan-to-screen matrix, Translate * Scale.
func (t Transform) Matrix() Matrix2D {
	return Translate(t.TranslateX, t.TranslateY).Multiply(Scale(t.Scale, t.Scale))
}

// TransformConfig bounds the scale a Manager will accept.
type TransformConfig struct {
	MinScale float64
	MaxScale float64
}

// DefaultTransformConfig returns the default scale limits.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{MinScale: 1e-3, MaxScale: 1e6}
}

// Manager owns the current view transform of one view session. Updates
// never produce a non-invertible transform: out-of-range scales are clamped.
type Manager struct {
	mu  sync.RWMutex
	cfg TransformConfig
	t   Transform
}

// NewManager creates a manager holding the identity transform.
func NewManager(cfg TransformConfig) *Manager {
	if cfg.MinScale <= 0 {
		cfg.MinScale = DefaultTransformConfig().MinScale
	}
	if cfg.MaxScale < cfg.MinScale {
		cfg.MaxScale = max(cfg.MinScale, DefaultTransformConfig().MaxScale)
	}
	return &Manager{cfg: cfg, t: IdentityTransform()}
}

// Current returns the transform in effect.
func (m *Manager) Current() Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t
}

func (m *Manager) clamp(scale float64) float64 {
	if scale <= 0 || scale < m.cfg.MinScale {
		return m.cfg.MinScale
	}
	return min(scale, m.cfg.MaxScale)
}

// Set replaces the transform, clamping the scale into range. Non-finite
// components are rejected and leave the current transform in place.
func (m *Manager) Set(t Transform) (Transform, error) {
	if err := t.validate(); err != nil {
		return m.Current(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Scale = m.clamp(t.Scale)
	m.t = t
	return t, nil
}

// Update applies a pan delta (screen pixels) and an additive zoom delta to
// the current transform. A resulting scale <= 0 clamps to the configured
// minimum.
func (m *Manager) Update(pan geometry.Point, zoomDelta float64) Transform {
	if math.IsNaN(zoomDelta) || math.IsInf(zoomDelta, 0) {
		zoomDelta = 0
	}
	if math.IsNaN(pan.X) || math.IsInf(pan.X, 0) || math.IsNaN(pan.Y) || math.IsInf(pan.Y, 0) {
		pan = geometry.Point{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.t.TranslateX += pan.X
	m.t.TranslateY += pan.Y
	m.t.Scale = m.clamp(m.t.Scale + zoomDelta)
	return m.t
}

// ZoomAt multiplies the scale by factor while keeping the plan point under
// the screen anchor fixed. Non-positive factors are ignored.
func (m *Manager) ZoomAt(anchor geometry.Point, factor float64) Transform {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !(factor > 0) || math.IsInf(factor, 0) {
		return m.t
	}

	planAnchor := m.t.Inverse(anchor)
	m.t.Scale = m.clamp(m.t.Scale * factor)
	m.t.TranslateX = anchor.X - planAnchor.X*m.t.Scale
	m.t.TranslateY = anchor.Y - planAnchor.Y*m.t.Scale
	return m.t
}

// Fit scales and centers plan inside viewport, leaving padding screen
// pixels on each side. Empty inputs leave the transform unchanged.
func (m *Manager) Fit(plan, viewport geometry.BoundingBox, padding float64) Transform {
	inner := viewport.Expand(-padding)
	if plan.IsEmpty() || inner.IsEmpty() {
		return m.Current()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	scale := m.clamp(min(inner.Width()/plan.Width(), inner.Height()/plan.Height()))
	pc, vc := plan.Center(), inner.Center()
	m.t = Transform{
		Scale:      scale,
		TranslateX: vc.X - pc.X*scale,
		TranslateY: vc.Y - pc.Y*scale,
	}
	return m.t
}

// VisiblePlanBounds returns the plan-space rectangle shown in viewport.
func (m *Manager) VisiblePlanBounds(viewport geometry.BoundingBox) geometry.BoundingBox {
	inv, _ := m.Current().Matrix().Invert()
	return inv.TransformBox(viewport)
}
