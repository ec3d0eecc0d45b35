package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "engine.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	tables := []string{
		"user_progress", "point_awards", "streaks", "streak_rewards",
		"companions", "ranking_buckets", "ranking_entries", "ranking_closeouts",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	first, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	first.Close()

	second, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "engine.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO point_awards (id, user_id, delta, balance_after, level_after, awarded_at, created_at)
		VALUES ('a1', 'ghost', 10, 10, 1, 0, 0)`)
	if err == nil {
		t.Error("expected foreign key violation for unknown user")
	}
}
