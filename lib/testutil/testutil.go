package testutil

import (
	"database/sql"
	"strings"
	"testing"

	"productchecker/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	// if unspecified, it will skip executing a schema
	Schema string
	// if unspecified, it will use `:memory:`
	Path string
}

// SetupDB opens a sqlite database for a test and closes it when the test ends.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	telemetry.InitSlog(testing.Verbose())

	dbpath := ":memory:"
	if params.Path != "" {
		dbpath = params.Path
	}
	sqlite, err := sql.Open("sqlite", dbpath)
	if err != nil {
		t.Fatal(err)
	}
	// every new connection to :memory: is a new database
	sqlite.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlite.Close()
	})

	if params.Schema == "" {
		return sqlite
	}
	_, err = sqlite.Exec(params.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return sqlite
}
