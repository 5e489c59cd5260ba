// Package main applies the schema in migrations/ with golang-migrate.
// Applied versions are tracked in the schema_migrations table.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/welldanyogia/presence-stream/internal/config"
	"github.com/welldanyogia/presence-stream/internal/logger"
)

// Version is set at build time
var Version = "dev"

const defaultMigrationTimeout = 5 * time.Minute

// Options holds migration settings
type Options struct {
	DatabaseURL    string
	MigrationsPath string
	Timeout        time.Duration
	DryRun         bool
}

func main() {
	log := logger.New(logger.DefaultConfig())
	db := config.Load().Database

	var (
		migrPath = flag.String("path", envOr("MIGRATIONS_PATH", "migrations"), "Path to migrations directory")
		timeout  = flag.Duration("timeout", defaultMigrationTimeout, "Lock and connect timeout")
		dryRun   = flag.Bool("dry-run", false, "Show what would be done without executing")
		version  = flag.Bool("version", false, "Print version and exit")
	)
	flag.StringVar(&db.Host, "db-host", db.Host, "Database host (DB_HOST)")
	flag.StringVar(&db.Port, "db-port", db.Port, "Database port (DB_PORT)")
	flag.StringVar(&db.User, "db-user", db.User, "Database user (DB_USER)")
	flag.StringVar(&db.Password, "db-password", db.Password, "Database password (DB_PASSWORD)")
	flag.StringVar(&db.DBName, "db-name", db.DBName, "Database name (DB_NAME)")
	flag.StringVar(&db.SSLMode, "db-sslmode", db.SSLMode, "Database SSL mode (DB_SSLMODE)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Roll back all or N migrations\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	opts := Options{
		DatabaseURL:    db.URL(),
		MigrationsPath: *migrPath,
		Timeout:        *timeout,
		DryRun:         *dryRun,
	}

	if err := run(opts, args[0], args[1:], log); err != nil {
		log.Error("Migration command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(opts Options, cmd string, args []string, log *slog.Logger) error {
	n, err := intArg(args)
	if err != nil {
		return err
	}

	if opts.DryRun {
		log.Info("Dry run", "command", cmd, "arg", n, "path", opts.MigrationsPath)
		return nil
	}

	m, err := newMigrate(opts)
	if err != nil {
		return err
	}
	defer m.Close()

	from, dirty, verErr := m.Version()

	switch cmd {
	case "version":
		if errors.Is(verErr, migrate.ErrNilVersion) {
			log.Info("No migrations have been applied yet")
			return nil
		}
		log.Info("Current migration version", "version", from, "dirty", dirty)
		return nil
	case "up":
		if n > 0 {
			err = m.Steps(n)
		} else {
			err = m.Up()
		}
	case "down":
		if n > 0 {
			err = m.Steps(-n)
		} else {
			err = m.Down()
		}
	case "force":
		if len(args) == 0 {
			return errors.New("force requires a version number")
		}
		err = m.Force(n)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No migrations to apply", "version", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	to, _, _ := m.Version()
	log.Info("Migration completed", "from", from, "to", to)
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", args[0])
	}
	return n, nil
}

// newMigrate opens the database and binds the file source
func newMigrate(opts Options) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	migrationsPath, err := filepath.Abs(opts.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = opts.Timeout

	return m, nil
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
