package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// SetupTestDB creates an isolated in-memory SQLite database with the full schema
func SetupTestDB(t testing.TB) *Database {
	t.Helper()

	dsn := fmt.Sprintf("file:test-%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
	database, err := NewDatabase(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// SeedProfile inserts a profile so user-owned rows satisfy their foreign keys
func SeedProfile(t testing.TB, database *Database, userID string) {
	t.Helper()

	repo := NewProfileRepository(database)
	if err := repo.Upsert(context.Background(), userID, userID+"@example.com"); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
}
