package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"003_seed.sql":     {Data: []byte("INSERT INTO specialties (name) VALUES ('x');")},
		"001_core.sql":     {Data: []byte("CREATE TABLE users (id SERIAL PRIMARY KEY);")},
		"002_settings.sql": {Data: []byte("CREATE TABLE system_settings (key TEXT PRIMARY KEY);")},
		"README.md":        {Data: []byte("docs")},
		"notes.sql":        {Data: []byte("-- no prefix")},
		"abc_invalid.sql":  {Data: []byte("-- non numeric")},
		"sub/004_deep.sql": {Data: []byte("-- nested files are ignored")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_core.sql", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE users (id SERIAL PRIMARY KEY);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 3, migrations[2].Version)
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":  {Data: []byte("SELECT 1;")},
		"001_other.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := NewMigrator(nil, files).LoadMigrations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	applied := map[int]time.Time{1: time.Now(), 3: time.Now()}

	pending := Pending(migrations, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)
}

func TestStatusOf(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	migrations := []Migration{{Version: 1, Name: "001_core.sql"}, {Version: 2, Name: "002_settings.sql"}}

	statuses := statusOf(migrations, map[int]time.Time{1: at})
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	require.NotNil(t, statuses[0].AppliedAt)
	assert.Equal(t, at, *statuses[0].AppliedAt)
	assert.False(t, statuses[1].Applied)
	assert.Nil(t, statuses[1].AppliedAt)
}
