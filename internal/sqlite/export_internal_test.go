package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/liftcycle/internal/testhelpers"
)

func TestDatabase_ExportUser(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		userID     string
		schema     string
		rows       []string
		wantCounts map[string]int
		wantErr    bool
	}{
		{
			name:   "direct ownership",
			userID: "u1",
			schema: `CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT);
				CREATE TABLE cycles (id TEXT PRIMARY KEY, user_id TEXT REFERENCES users (id));`,
			rows: []string{
				"INSERT INTO users VALUES ('u1', 'Ada'), ('u2', 'Grace')",
				"INSERT INTO cycles VALUES ('c1', 'u1'), ('c2', 'u1'), ('c3', 'u2')",
			},
			wantCounts: map[string]int{"users": 1, "cycles": 2},
		},
		{
			name:   "ownership through several hops and a shared catalogue",
			userID: "u1",
			schema: `CREATE TABLE users (id TEXT PRIMARY KEY);
				CREATE TABLE definitions (id TEXT PRIMARY KEY, name TEXT);
				CREATE TABLE cycles (id TEXT PRIMARY KEY, user_id TEXT REFERENCES users (id),
					current_workout_id TEXT REFERENCES workouts (id));
				CREATE TABLE workouts (id TEXT PRIMARY KEY, cycle_id TEXT REFERENCES cycles (id));
				CREATE TABLE exercises (id TEXT PRIMARY KEY, workout_id TEXT REFERENCES workouts (id),
					definition_id TEXT REFERENCES definitions (id));
				CREATE TABLE sets (id TEXT PRIMARY KEY, exercise_id TEXT REFERENCES exercises (id));
				CREATE TABLE feature_flags (name TEXT PRIMARY KEY);`,
			rows: []string{
				"INSERT INTO users VALUES ('u1'), ('u2')",
				"INSERT INTO definitions VALUES ('d1', 'Back Squat'), ('d2', 'Bench Press')",
				"INSERT INTO cycles VALUES ('c1', 'u1', NULL), ('c2', 'u2', NULL)",
				"INSERT INTO workouts VALUES ('w1', 'c1'), ('w2', 'c1'), ('w3', 'c2')",
				"INSERT INTO exercises VALUES ('e1', 'w1', 'd1'), ('e2', 'w3', 'd2')",
				"INSERT INTO sets VALUES ('s1', 'e1'), ('s2', 'e1'), ('s3', 'e2')",
				"INSERT INTO feature_flags VALUES ('beta')",
			},
			wantCounts: map[string]int{
				"users": 1, "cycles": 1, "workouts": 2, "exercises": 1, "sets": 2, "definitions": 2,
			},
		},
		{
			name:       "unknown user exports empty tables",
			userID:     "nobody",
			schema:     `CREATE TABLE users (id TEXT PRIMARY KEY); CREATE TABLE cycles (id TEXT PRIMARY KEY, user_id TEXT REFERENCES users (id));`,
			rows:       []string{"INSERT INTO users VALUES ('u1')", "INSERT INTO cycles VALUES ('c1', 'u1')"},
			wantCounts: map[string]int{"users": 0, "cycles": 0},
		},
		{
			name:    "no users table",
			userID:  "u1",
			schema:  `CREATE TABLE cycles (id TEXT PRIMARY KEY, user_id TEXT);`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			db := connectForTest(t, testhelpers.NewLogger(testhelpers.NewWriter(t)))
			if _, err := db.ReadWrite.ExecContext(ctx, tt.schema); err != nil {
				t.Fatalf("create schema: %v", err)
			}
			for _, row := range tt.rows {
				if _, err := db.ReadWrite.ExecContext(ctx, row); err != nil {
					t.Fatalf("insert %q: %v", row, err)
				}
			}

			path, err := db.ExportUser(ctx, tt.userID, t.TempDir())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExportUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if filepath.Base(path) != "user-"+tt.userID+".sqlite3" {
				t.Errorf("unexpected export path %s", path)
			}

			exported, err := sql.Open("sqlite3", path)
			if err != nil {
				t.Fatalf("open export: %v", err)
			}
			t.Cleanup(func() { _ = exported.Close() })

			tables, err := exported.QueryContext(ctx,
				"SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
			if err != nil {
				t.Fatalf("list tables: %v", err)
			}
			var names []string
			for tables.Next() {
				var name string
				if err = tables.Scan(&name); err != nil {
					t.Fatalf("scan: %v", err)
				}
				names = append(names, name)
			}
			if err = tables.Close(); err != nil {
				t.Fatalf("close rows: %v", err)
			}

			got := make(map[string]int, len(names))
			for _, name := range names {
				var count int
				if err = exported.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&count); err != nil {
					t.Fatalf("count %s: %v", name, err)
				}
				got[name] = count
			}
			if diff := cmp.Diff(tt.wantCounts, got); diff != "" {
				t.Errorf("exported row counts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOwnedBy(t *testing.T) {
	t.Parallel()
	hops := map[string]*fkHop{
		"users":    nil,
		"cycles":   {from: "user_id", parent: "users", to: "id"},
		"workouts": {from: "cycle_id", parent: "cycles", to: "id"},
	}
	want := "cycle_id IN (SELECT id FROM main.cycles WHERE user_id = ?)"
	if got := ownedBy("workouts", hops); got != want {
		t.Errorf("ownedBy() = %q, want %q", got, want)
	}
	if got := ownedBy("users", hops); got != "id = ?" {
		t.Errorf("ownedBy(users) = %q", got)
	}
}
