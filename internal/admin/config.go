package admin

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/models"
)

// physicsPrefix marks runtime keys that override a physics tunable:
// physics_rolling_friction overrides PHYSICS_ROLLING_FRICTION.
const physicsPrefix = "physics_"

// GetAllRuntimeConfig returns all runtime config entries
func GetAllRuntimeConfig(db *sqlx.DB) ([]models.RuntimeConfig, error) {
	configs := []models.RuntimeConfig{}
	err := db.Select(&configs, `
		SELECT key, value, value_type, description, updated_by, updated_at
		FROM runtime_config
		ORDER BY key
	`)
	return configs, err
}

// GetRuntimeConfigValue returns a single runtime config value
func GetRuntimeConfigValue(db *sqlx.DB, key string) (*models.RuntimeConfig, error) {
	var cfg models.RuntimeConfig
	err := db.Get(&cfg, `SELECT key, value, value_type, description, updated_by, updated_at FROM runtime_config WHERE key=$1`, key)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateRuntimeConfigValue validates and stores a new value. base is the
// running config; the value is tried against a copy of it so a physics
// override that would destabilise the simulation is refused here rather
// than at the next start.
func UpdateRuntimeConfigValue(db *sqlx.DB, base *config.Config, key, value, adminUsername string) error {
	existing, err := GetRuntimeConfigValue(db, key)
	if err != nil {
		return fmt.Errorf("config key not found: %s", key)
	}
	if err := checkType(existing.ValueType, value); err != nil {
		return err
	}
	if err := applyRuntimeValue(base.Clone(), key, value, true); err != nil {
		return err
	}

	_, err = db.Exec(`
		UPDATE runtime_config SET value=$1, updated_by=$2, updated_at=NOW() WHERE key=$3
	`, value, adminUsername, key)
	return err
}

func checkType(valueType, value string) error {
	switch valueType {
	case "int":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid boolean value: %s (must be 'true' or 'false')", value)
		}
	}
	return nil
}

// ApplyRuntimeConfigToConfig loads runtime config from DB and applies
// overrides to cfg. Bad rows are logged and skipped.
func ApplyRuntimeConfigToConfig(db *sqlx.DB, cfg *config.Config) error {
	configs, err := GetAllRuntimeConfig(db)
	if err != nil {
		return err
	}

	applied := 0
	for _, c := range configs {
		if err := applyRuntimeValue(cfg, c.Key, c.Value, false); err != nil {
			log.Printf("[CONFIG] Skipping runtime config %s=%q: %v", c.Key, c.Value, err)
			continue
		}
		applied++
	}
	if _, err := cfg.PhysicsParams(); err != nil {
		return fmt.Errorf("runtime physics overrides: %w", err)
	}

	log.Printf("[CONFIG] Applied %d runtime config overrides from database", applied)
	return nil
}

// applyRuntimeValue sets one key on cfg. With validate, physics overrides
// are checked against the full parameter set.
func applyRuntimeValue(cfg *config.Config, key, value string, validate bool) error {
	if strings.HasPrefix(key, physicsPrefix) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		if err := cfg.SetPhysicsOverride(strings.ToUpper(key), v); err != nil {
			return err
		}
		if validate {
			_, err = cfg.PhysicsParams()
		}
		return err
	}

	switch key {
	case "turn_time_limit_seconds", "match_expiry_minutes", "disconnect_grace_seconds", "tick_rate_hz":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		switch key {
		case "turn_time_limit_seconds":
			cfg.TurnTimeLimitSeconds = v
		case "match_expiry_minutes":
			cfg.MatchExpiryMinutes = v
		case "disconnect_grace_seconds":
			cfg.DisconnectGraceSeconds = v
		case "tick_rate_hz":
			if v == 0 {
				return fmt.Errorf("tick rate must be positive")
			}
			cfg.TickRateHz = v
		}
	case "require_rail_after_contact":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		cfg.RequireRailAfterContact = b
	default:
		return fmt.Errorf("unknown runtime config key %q", key)
	}
	return nil
}
