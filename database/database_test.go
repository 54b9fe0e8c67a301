package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate_IsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	conn, err := OpenAndMigrate(dbPath)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(conn))

	var applied int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, 2, applied)

	for _, table := range []string{"users", "audit_log"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
	require.NoError(t, conn.Close())
}

func TestInitializeDatabase_SetsGlobal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "global.db")

	require.NoError(t, InitializeDatabase(dbPath))
	t.Cleanup(func() { CloseDB() })

	require.NotNil(t, GetDB())
	assert.NoError(t, GetDB().Ping())
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 2;")},
		"migrations/002_second.sql": {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "002_second", migrations[0].Version)
	assert.Equal(t, "010_later", migrations[1].Version)
}

func TestLoadMigrations_Empty(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{})
	assert.Error(t, err)
}
