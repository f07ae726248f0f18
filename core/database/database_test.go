package database

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/m3rciful/intakebot/migrations"
)

func TestConfigNormalize(t *testing.T) {
	pg := Config{Host: "db", Name: "intake"}
	if err := pg.Normalize(); err != nil {
		t.Fatalf("normalize postgres: %v", err)
	}
	if pg.Driver != DriverPostgres || pg.Port != "5432" || pg.SSLMode != "disable" || pg.MaxConnections != 5 {
		t.Fatalf("defaults not applied: %+v", pg)
	}
	if got := pg.MigrateURL(); !strings.HasPrefix(got, "postgres://") || !strings.Contains(got, "db:5432/intake") {
		t.Fatalf("unexpected migrate url %q", got)
	}

	lite := Config{Driver: "SQLite", Path: "bot.db", MaxConnections: 10}
	if err := lite.Normalize(); err != nil {
		t.Fatalf("normalize sqlite: %v", err)
	}
	if lite.MaxConnections != 1 {
		t.Fatalf("sqlite pool must be single connection, got %d", lite.MaxConnections)
	}
	if lite.MigrateURL() != "sqlite://bot.db" {
		t.Fatalf("unexpected migrate url %q", lite.MigrateURL())
	}

	for _, bad := range []Config{{Driver: "mysql"}, {Driver: DriverSQLite}, {Driver: DriverPostgres}} {
		bad := bad
		if err := bad.Normalize(); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}

func TestRunMigrationsSQLite(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
	if err := RunMigrations(cfg, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run is a no-op
	if err := RunMigrations(cfg, migrations.FS); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"bot_sessions", "bot_orders", "bot_test_registrations", "bot_asset_cache"} {
		var n int
		if err := db.Get(&n, db.Rebind("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"), table); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	got := selectApplied(files, 1, 3)
	if len(got) != 2 || got[0] != "000002_b.up.sql" {
		t.Fatalf("unexpected applied set %v", got)
	}
	if selectApplied(files, 3, 3) != nil {
		t.Fatal("expected nothing applied")
	}
}
