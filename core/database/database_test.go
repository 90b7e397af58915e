package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddedMigrationsListed(t *testing.T) {
	files := listMigrationFiles(migrationsFS, "migrations")
	assert.Equal(t, []string{"0001_init.up.sql"}, files)

	body, err := migrationsFS.ReadFile("migrations/0001_init.up.sql")
	assert.NoError(t, err)
	for _, table := range []string{"config", "users", "messages"} {
		assert.True(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table), table)
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_more.up.sql", "0003_last.up.sql"}
	assert.Equal(t, []string{"0002_more.up.sql", "0003_last.up.sql"}, selectApplied(files, 1, 3))
	assert.Nil(t, selectApplied(files, 3, 3))
}

func TestConfigConnectionStrings(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "relay", Password: "p@ss", Name: "topicrelay"}
	assert.Equal(t, "user=relay password=p@ss host=db port=5432 dbname=topicrelay sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://relay:p%40ss@db:5432/topicrelay?sslmode=disable", cfg.URL())
}
