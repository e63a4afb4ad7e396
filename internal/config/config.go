package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/quadtree"
)

type Config struct {
	Port           int    `envconfig:"PORT" default:"8080"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	JWTSecret      string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	PlanDir        string `envconfig:"PLAN_DIR" default:"./data/plans"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	PlanCacheTTL  time.Duration `envconfig:"PLAN_CACHE_TTL" default:"10m"`

	KafkaBrokers     string `envconfig:"KAFKA_BROKERS"`
	KafkaCommitTopic string `envconfig:"KAFKA_COMMIT_TOPIC" default:"plankit.polygon-commits"`

	QuadtreeCapacity  int           `envconfig:"QUADTREE_CAPACITY" default:"10"`
	QuadtreeMaxDepth  int           `envconfig:"QUADTREE_MAX_DEPTH" default:"5"`
	MinScale          float64       `envconfig:"MIN_SCALE" default:"0.001"`
	MaxScale          float64       `envconfig:"MAX_SCALE" default:"1000000"`
	FirstHoverBudget  time.Duration `envconfig:"FIRST_HOVER_BUDGET" default:"50ms"`
	FollowHoverBudget time.Duration `envconfig:"FOLLOW_HOVER_BUDGET" default:"80ms"`
	DwellReset        time.Duration `envconfig:"DWELL_RESET" default:"150ms"`
	SimplifyTolerance float64       `envconfig:"SIMPLIFY_TOLERANCE" default:"0.5"`
	SnapToleranceDeg  float64       `envconfig:"SNAP_TOLERANCE_DEG" default:"7"`
	SnapAngles        []float64     `envconfig:"SNAP_ANGLES" default:"0,45,90"`
	MinPolygonArea    float64       `envconfig:"MIN_POLYGON_AREA" default:"1"`
}

// Load reads an optional .env file (values already in the environment win)
// and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.QuadtreeCapacity < 1:
		return fmt.Errorf("QUADTREE_CAPACITY must be >= 1, got %d", c.QuadtreeCapacity)
	case c.QuadtreeMaxDepth < 0:
		return fmt.Errorf("QUADTREE_MAX_DEPTH must be >= 0, got %d", c.QuadtreeMaxDepth)
	case c.MinScale <= 0 || c.MaxScale < c.MinScale:
		return fmt.Errorf("scale range [%g, %g] is invalid", c.MinScale, c.MaxScale)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS into websocket origin patterns (host[:port]).
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Brokers splits KAFKA_BROKERS.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Engine returns the engine configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Index: quadtree.Config{Capacity: c.QuadtreeCapacity, MaxDepth: c.QuadtreeMaxDepth},
		Transform: engine.TransformConfig{
			MinScale: c.MinScale,
			MaxScale: c.MaxScale,
		},
		Coordinator: engine.CoordinatorConfig{
			FirstHoverBudget:  c.FirstHoverBudget,
			FollowHoverBudget: c.FollowHoverBudget,
			DwellReset:        c.DwellReset,
		},
		MinPolygonArea: c.MinPolygonArea,
	}
}

// Editor returns the editor configuration.
func (c *Config) Editor() editor.Config {
	return editor.Config{
		SimplifyTolerance: c.SimplifyTolerance,
		SnapToleranceDeg:  c.SnapToleranceDeg,
		SnapAngles:        c.SnapAngles,
		MinPolygonArea:    c.MinPolygonArea,
	}
}
