package migrations

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindLatestMigrationVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000012_turn_index.up.sql",
		"README.md",
		"7_loose.up.sql",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "000099_dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	if got := findLatestMigrationVersion(dir); got != 12 {
		t.Errorf("latest = %d, want 12", got)
	}
	if got := findLatestMigrationVersion(filepath.Join(dir, "missing")); got != 0 {
		t.Errorf("missing dir = %d, want 0", got)
	}
}

func TestShippedMigrationsParse(t *testing.T) {
	if got := findLatestMigrationVersion("../../migrations"); got < 1 {
		t.Errorf("no migrations found in the repository")
	}
}

func TestRunMigrationsNeedsURL(t *testing.T) {
	if err := RunMigrations("", ""); err == nil {
		t.Errorf("expected an error for an empty URL")
	}
}
