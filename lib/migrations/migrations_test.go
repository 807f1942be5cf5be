package migrations

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `create table if not exists item (
    id integer primary key autoincrement,
    name text not null
);`

func TestOpenAndMigrateIsIdempotent(t *testing.T) {
	cfg := Database{File: filepath.Join(t.TempDir(), "nested", "state.db")}

	db, err := cfg.OpenAndMigrate(testSchema)
	require.NoError(t, err)
	_, err = db.Exec("insert into item(name) values ('a')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = cfg.OpenAndMigrate(testSchema)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("select count(*) from item").Scan(&count))
	require.Equal(t, 1, count)
}

func TestOpenRequiresLocation(t *testing.T) {
	_, err := Database{}.Open()
	require.Error(t, err)
}
