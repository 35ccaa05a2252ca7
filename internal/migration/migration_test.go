package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/leadgate/leadgate/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversEveryModelTable(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_core.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	db := dbtest.Open(t)
	require.NoError(t, AutoMigrate(db))

	for _, model := range Models() {
		stmt := db.Model(model).Statement
		require.NoError(t, stmt.Parse(model))
		table := stmt.Schema.Table
		assert.True(t, db.Migrator().HasTable(table), table)
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
		for _, field := range stmt.Schema.DBNames {
			assert.Contains(t, sql, "    "+field+" ", "%s.%s", table, field)
		}
	}
}
