package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/playpool/billiards/internal/physics"
	"github.com/playpool/billiards/internal/rules"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Standalone runs the match server without Postgres or Redis
	Standalone bool

	// Server
	Port        string
	FrontendURL string

	// Match settings
	TickRateHz               int
	TurnTimeLimitSeconds     int
	TimerPollIntervalSeconds int
	MatchExpiryMinutes       int
	DisconnectGraceSeconds   int
	RequireRailAfterContact  bool

	// Table
	TableGeometryFile string

	// Local replays (terminal viewer)
	ReplayDBPath string

	// Security
	JWTSecret     string
	TokenTTLHours int

	// Physics overrides, keyed by PHYSICS_* variable
	physicsOverrides map[string]float64
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/billiards?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Standalone: getEnvBool("STANDALONE", false),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Match settings
		TickRateHz:               getEnvInt("TICK_RATE_HZ", 60),
		TurnTimeLimitSeconds:     getEnvInt("TURN_TIME_LIMIT_SECONDS", 45),
		TimerPollIntervalSeconds: getEnvInt("TIMER_POLL_INTERVAL_SECONDS", 1),
		MatchExpiryMinutes:       getEnvInt("MATCH_EXPIRY_MINUTES", 10),
		DisconnectGraceSeconds:   getEnvInt("DISCONNECT_GRACE_PERIOD_SECONDS", 120),
		RequireRailAfterContact:  getEnvBool("REQUIRE_RAIL_AFTER_CONTACT", false),

		// Table
		TableGeometryFile: getEnv("TABLE_GEOMETRY_FILE", ""),

		ReplayDBPath: getEnv("REPLAY_DB_PATH", "replays.db"),

		// Security
		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTLHours: getEnvInt("TOKEN_TTL_HOURS", 24),

		physicsOverrides: physicsFromEnv(),
	}
}

// physicsEnv maps PHYSICS_* variables onto the tunables they override.
var physicsEnv = map[string]func(p *physics.Params, v float64){
	"PHYSICS_BALL_RADIUS":           func(p *physics.Params, v float64) { p.BallRadius = v },
	"PHYSICS_VELOCITY_SCALE":        func(p *physics.Params, v float64) { p.VelocityScale = v },
	"PHYSICS_SUBSTEP_FRACTION":      func(p *physics.Params, v float64) { p.SubStepFraction = v },
	"PHYSICS_MAX_SUBSTEPS":          func(p *physics.Params, v float64) { p.MaxSubSteps = int(v) },
	"PHYSICS_MAX_FRAME_DELTA":       func(p *physics.Params, v float64) { p.MaxFrameDelta = v },
	"PHYSICS_SOLVER_ITERATIONS":     func(p *physics.Params, v float64) { p.SolverIterations = int(v) },
	"PHYSICS_SLIDING_FRICTION":      func(p *physics.Params, v float64) { p.SlidingFriction = v },
	"PHYSICS_ROLLING_FRICTION":      func(p *physics.Params, v float64) { p.RollingFriction = v },
	"PHYSICS_SLIDING_THRESHOLD":     func(p *physics.Params, v float64) { p.SlidingThreshold = v },
	"PHYSICS_SPIN_RETENTION":        func(p *physics.Params, v float64) { p.SpinRetention = v },
	"PHYSICS_CUSHION_RESTITUTION":   func(p *physics.Params, v float64) { p.CushionRestitution = v },
	"PHYSICS_BALL_RESTITUTION":      func(p *physics.Params, v float64) { p.BallRestitution = v },
	"PHYSICS_CUSHION_SIDE_SPIN":     func(p *physics.Params, v float64) { p.CushionSideSpin = v },
	"PHYSICS_CUSHION_BITE":          func(p *physics.Params, v float64) { p.CushionBite = v },
	"PHYSICS_CUSHION_SPIN_USE":      func(p *physics.Params, v float64) { p.CushionSpinUse = v },
	"PHYSICS_FOLLOW_DRAW":           func(p *physics.Params, v float64) { p.FollowDraw = v },
	"PHYSICS_SIDE_TRANSFER":         func(p *physics.Params, v float64) { p.SideTransfer = v },
	"PHYSICS_SPIN_USE":              func(p *physics.Params, v float64) { p.SpinUse = v },
	"PHYSICS_MAX_SPEED":             func(p *physics.Params, v float64) { p.MaxSpeed = v },
	"PHYSICS_MAX_SHOT_SPEED":        func(p *physics.Params, v float64) { p.MaxShotSpeed = v },
	"PHYSICS_REST_SPEED":            func(p *physics.Params, v float64) { p.RestSpeed = v },
	"PHYSICS_GRID_CELL_FACTOR":      func(p *physics.Params, v float64) { p.GridCellFactor = v },
	"PHYSICS_POCKET_OPENING_MARGIN": func(p *physics.Params, v float64) { p.PocketOpeningMargin = v },
}

func physicsFromEnv() map[string]float64 {
	out := make(map[string]float64)
	for key := range physicsEnv {
		if v, ok := lookupFloat(key); ok {
			out[key] = v
		}
	}
	return out
}

// PhysicsParams returns the default tunables with any PHYSICS_* overrides
// applied, validated.
func (c *Config) PhysicsParams() (physics.Params, error) {
	p := physics.DefaultParams()
	for key, v := range c.physicsOverrides {
		physicsEnv[key](&p, v)
	}
	if err := p.Validate(); err != nil {
		return physics.Params{}, err
	}
	return p, nil
}

// SetPhysicsOverride overrides one PHYSICS_* tunable.
func (c *Config) SetPhysicsOverride(key string, v float64) error {
	if _, ok := physicsEnv[key]; !ok {
		return fmt.Errorf("unknown physics setting %q", key)
	}
	if c.physicsOverrides == nil {
		c.physicsOverrides = make(map[string]float64)
	}
	c.physicsOverrides[key] = v
	return nil
}

// Clone copies the config, overrides included.
func (c *Config) Clone() *Config {
	cp := *c
	cp.physicsOverrides = make(map[string]float64, len(c.physicsOverrides))
	for k, v := range c.physicsOverrides {
		cp.physicsOverrides[k] = v
	}
	return &cp
}

// RuleOptions returns the turn options for new games.
func (c *Config) RuleOptions() rules.Options {
	return rules.Options{
		TurnTimeLimit:           time.Duration(c.TurnTimeLimitSeconds) * time.Second,
		RequireRailAfterContact: c.RequireRailAfterContact,
	}
}

// TableSpec reads the geometry named by TABLE_GEOMETRY_FILE, or returns the
// standard layout when no file is configured. Files ending in .toml are
// decoded as TOML, anything else as JSON.
func (c *Config) TableSpec() (physics.TableSpec, error) {
	if c.TableGeometryFile == "" {
		return physics.StandardTableSpec(), nil
	}
	var spec physics.TableSpec
	if strings.EqualFold(filepath.Ext(c.TableGeometryFile), ".toml") {
		if _, err := toml.DecodeFile(c.TableGeometryFile, &spec); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return physics.TableSpec{}, fmt.Errorf("read table geometry: %w", err)
			}
			return physics.TableSpec{}, fmt.Errorf("%w: %s: %v", physics.ErrInvalidTable, c.TableGeometryFile, err)
		}
		return spec, nil
	}
	data, err := os.ReadFile(c.TableGeometryFile)
	if err != nil {
		return physics.TableSpec{}, fmt.Errorf("read table geometry: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return physics.TableSpec{}, fmt.Errorf("%w: %s: %v", physics.ErrInvalidTable, c.TableGeometryFile, err)
	}
	return spec, nil
}

// LoadTable builds the configured table for p.
func (c *Config) LoadTable(p physics.Params) (*physics.Table, error) {
	spec, err := c.TableSpec()
	if err != nil {
		return nil, err
	}
	return physics.NewTable(spec, p)
}

// TokenTTL is how long issued access tokens stay valid.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func lookupFloat(key string) (float64, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
