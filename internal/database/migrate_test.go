package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/media?sslmode=disable", MigrateURL("postgres://u:p@db:5432/media?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/media", MigrateURL("postgresql://u@db/media"))
	assert.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_create_photos.up.sql")
	assert.Contains(t, names, "0001_create_photos.down.sql")
}
