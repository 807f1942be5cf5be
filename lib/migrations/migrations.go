package migrations

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Database selects either a local sqlite file or a remote libsql database.
// Url takes precedence over File when both are set.
type Database struct {
	File      string `json:"file" env:"FILE"`
	Url       string `json:"url" env:"URL"`
	AuthToken string `json:"auth_token" env:"AUTH_TOKEN"`
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens (and creates, if necessary) a local sqlite database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	return db, nil
}

// OpenRemoteDB opens a libsql (turso) database over the network.
func OpenRemoteDB(rawUrl, authToken string) (*sql.DB, error) {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	if authToken != "" {
		query := u.Query()
		query.Set("authToken", authToken)
		u.RawQuery = query.Encode()
	}
	db, err := sql.Open("libsql", u.String())
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

func (d Database) Open() (*sql.DB, error) {
	if d.Url != "" {
		return OpenRemoteDB(d.Url, d.AuthToken)
	}
	if d.File == "" {
		return nil, wrapOpenDB(fmt.Errorf("neither database.file nor database.url is set"))
	}
	return OpenDB(d.File)
}

// OpenAndMigrate opens the database and applies schema, which must consist of
// idempotent `create ... if not exists` statements.
func (d Database) OpenAndMigrate(schema string) (*sql.DB, error) {
	db, err := d.Open()
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}
