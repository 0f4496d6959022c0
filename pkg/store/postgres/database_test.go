package postgres

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/app?sslmode=disable", "pgx5://u:p@db:5432/app?sslmode=disable"},
		{"postgresql://u@db/app", "pgx5://u@db/app"},
		{"pgx5://u@db/app", "pgx5://u@db/app"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected up and down migrations, got %d files", len(entries))
	}
}
