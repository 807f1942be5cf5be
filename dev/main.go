package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"productchecker/cmd/productchecker/commands"
	"productchecker/internal/components/db"
	"productchecker/lib/migrations"
)

const stateDir = "dev/.state"

func writeConfig(path string, cfg commands.Config) error {
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("config already created at", path)
		return nil
	}

	contents, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println("writing config to", path)
	return os.WriteFile(path, contents, 0644)
}

func create(recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll(stateDir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll(stateDir, 0777)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(stateDir, "productchecker.db")
	fmt.Println("migrating database at", dbPath)
	database, err := migrations.Database{File: dbPath}.OpenAndMigrate(db.Schema)
	if err != nil {
		return err
	}
	database.Close()

	return writeConfig(filepath.Join(stateDir, "config.json5"), commands.Config{
		Database: migrations.Database{File: dbPath},
		Scheduler: commands.SchedulerConfig{
			DefaultFrequency: 60,
		},
		Fetcher: commands.FetcherConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 1,
			DumpDir:           filepath.Join(stateDir, "pages"),
		},
	})
}

func main() {
	recreate := flag.Bool("recreate", false, "recreate the dev environment from scratch")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}

	slog.Info("dev environment created, run with: go run ./cmd/productchecker --config dev/.state/config.json5 run")
}
