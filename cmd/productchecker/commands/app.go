package commands

import (
	"database/sql"
	"time"

	"productchecker/internal/catalog"
	"productchecker/internal/components/chrono"
	"productchecker/internal/components/db"
	"productchecker/internal/components/telemetry"
	"productchecker/internal/fetcher"
	"productchecker/internal/monitor"
	"productchecker/internal/notify"
	"productchecker/lib/configutil"
	"productchecker/lib/migrations"

	"github.com/spf13/cobra"
)

const envPrefix = "PRODUCTCHECKER_"

const defaultDatabaseFile = "productchecker.db"

type SchedulerConfig struct {
	// DefaultFrequency is in seconds.
	DefaultFrequency int `json:"default_frequency" env:"DEFAULT_FREQUENCY" validate:"omitempty,min=10,max=86400"`
}

type FetcherConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds" env:"TIMEOUT_SECONDS" validate:"omitempty,min=1"`
	RequestsPerSecond float64 `json:"requests_per_second" env:"REQUESTS_PER_SECOND" validate:"omitempty,gt=0"`
	UserAgent         string  `json:"user_agent" env:"USER_AGENT"`
	DumpDir           string  `json:"dump_dir" env:"DUMP_DIR"`
}

type Config struct {
	Database  migrations.Database `json:"database" envPrefix:"DATABASE_"`
	Scheduler SchedulerConfig     `json:"scheduler" envPrefix:"SCHEDULER_"`
	Fetcher   FetcherConfig       `json:"fetcher" envPrefix:"FETCHER_"`
	Smtp      notify.SmtpConfig   `json:"smtp" envPrefix:"SMTP_"`
}

func (c FetcherConfig) options() fetcher.Options {
	return fetcher.Options{
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		UserAgent:         c.UserAgent,
		DumpDir:           c.DumpDir,
	}
}

// app holds what every command needs: the config, the database and the
// catalog store on top of it.
type app struct {
	config Config
	db     *sql.DB
	store  catalog.Store
	tel    telemetry.API
	time   chrono.TimeAPI
}

func openApp() (*app, error) {
	cfg, err := configutil.Load[Config](*configPath, envPrefix)
	if err != nil {
		return nil, err
	}
	if cfg.Database.File == "" && cfg.Database.Url == "" {
		cfg.Database.File = defaultDatabaseFile
	}

	database, err := cfg.Database.OpenAndMigrate(db.Schema)
	if err != nil {
		return nil, err
	}

	tel := telemetry.SlogAPI{}
	clock := chrono.NewStandardTime()
	return &app{
		config: cfg,
		db:     database,
		store:  catalog.NewStore(database, clock, tel),
		tel:    tel,
		time:   clock,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) newFetcher() (*fetcher.Fetcher, error) {
	return fetcher.New(a.config.Fetcher.options(), a.tel)
}

// sink routes discord webhooks always and mailto: endpoints only when smtp
// is configured.
func (a *app) sink() notify.Router {
	router := notify.Router{Discord: notify.NewDiscord(a.tel)}
	if a.config.Smtp.Server != "" && a.config.Smtp.EmailAddress != "" {
		router.Email = notify.NewEmail(a.config.Smtp, a.tel)
	}
	return router
}

func (a *app) defaultFrequency() time.Duration {
	if a.config.Scheduler.DefaultFrequency <= 0 {
		return monitor.DefaultFrequency
	}
	return time.Duration(a.config.Scheduler.DefaultFrequency) * time.Second
}

type appRunFunc func(cmd *cobra.Command, args []string, a *app) error

// withApp opens the app for the duration of a command.
func withApp(run appRunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}
