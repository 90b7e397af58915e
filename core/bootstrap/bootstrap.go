package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/topicrelay/core/config"
	coredatabase "github.com/m3rciful/topicrelay/core/database"
	"github.com/m3rciful/topicrelay/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when the memory driver is selected.
	DB *sqlx.DB
	// Migrate re-applies the embedded migrations against DB. It is nil for
	// the memory driver.
	Migrate func() error
}

// Run initializes the logger, connects to the database, and applies
// migrations. A failed migration is fatal.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	driver := strings.ToLower(strings.TrimSpace(opts.Database.Driver))
	switch driver {
	case coredatabase.DriverMemory:
		logger.Warn(context.Background(), "db", "db.driver",
			slog.String("driver", driver),
			slog.String("reason", "data is kept in memory only"),
		)
		return &Result{}, nil
	case "", coredatabase.DriverPostgres:
	default:
		return nil, fmt.Errorf("bootstrap: unknown database driver %q", opts.Database.Driver)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	dbCfg := opts.Database
	return &Result{
		DB:      db,
		Migrate: func() error { return migrate(dbCfg) },
	}, nil
}
