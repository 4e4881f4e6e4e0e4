package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/playpool/billiards/internal/physics"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TICK_RATE_HZ", "")
	t.Setenv("REQUIRE_RAIL_AFTER_CONTACT", "")
	cfg := Load()
	if cfg.TickRateHz != 60 {
		t.Errorf("TickRateHz = %d, want 60", cfg.TickRateHz)
	}
	if cfg.RequireRailAfterContact {
		t.Errorf("rail rule should be off by default")
	}
}

func TestRuleOptionsFromEnv(t *testing.T) {
	t.Setenv("TURN_TIME_LIMIT_SECONDS", "30")
	t.Setenv("REQUIRE_RAIL_AFTER_CONTACT", "true")
	opts := Load().RuleOptions()
	if opts.TurnTimeLimit != 30*time.Second || !opts.RequireRailAfterContact {
		t.Errorf("options = %+v", opts)
	}
}

func TestPhysicsOverrides(t *testing.T) {
	t.Setenv("PHYSICS_ROLLING_FRICTION", "20")
	t.Setenv("PHYSICS_BALL_RESTITUTION", "not-a-number")
	p, err := Load().PhysicsParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.RollingFriction != 20 {
		t.Errorf("RollingFriction = %v, want 20", p.RollingFriction)
	}
	if p.BallRestitution != physics.DefaultParams().BallRestitution {
		t.Errorf("bad override should be ignored, got %v", p.BallRestitution)
	}
}

func TestInvalidPhysicsOverrideFails(t *testing.T) {
	cfg := Load()
	if err := cfg.SetPhysicsOverride("PHYSICS_BALL_RADIUS", -1); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if _, err := cfg.PhysicsParams(); !errors.Is(err, physics.ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
	if err := cfg.SetPhysicsOverride("PHYSICS_NOPE", 1); err == nil {
		t.Errorf("unknown key accepted")
	}
}

func TestLoadTableFromFile(t *testing.T) {
	p := physics.DefaultParams()
	cfg := Load()

	cfg.TableGeometryFile = ""
	if _, err := cfg.LoadTable(p); err != nil {
		t.Fatalf("standard table: %v", err)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"cushion":[[0,0],[1,0]]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.TableGeometryFile = bad
	if _, err := cfg.LoadTable(p); !errors.Is(err, physics.ErrInvalidTable) {
		t.Errorf("err = %v, want ErrInvalidTable", err)
	}
}

func TestLoadTableFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.toml")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := toml.NewEncoder(f).Encode(physics.StandardTableSpec()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg := Load()
	cfg.TableGeometryFile = path
	spec, err := cfg.TableSpec()
	if err != nil {
		t.Fatalf("toml table: %v", err)
	}
	want := physics.StandardTableSpec()
	if spec.HeadSpot != want.HeadSpot || len(spec.Cushion) != len(want.Cushion) || len(spec.Pockets) != len(want.Pockets) {
		t.Errorf("decoded spec differs: head %v, %d cushion points, %d pockets", spec.HeadSpot, len(spec.Cushion), len(spec.Pockets))
	}
	if _, err := cfg.LoadTable(physics.DefaultParams()); err != nil {
		t.Errorf("toml table rejected: %v", err)
	}

	cfg.TableGeometryFile = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := cfg.TableSpec(); err == nil || errors.Is(err, physics.ErrInvalidTable) {
		t.Errorf("missing file err = %v, want a read error", err)
	}
}
