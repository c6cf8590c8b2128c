package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/medibot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/migrations"
	"github.com/wolfman30/medibot/pkg/logging"
)

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

type command struct {
	name    string
	version int
}

// parseCommand accepts: (none) | up | down | version | force <n>.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "down", "version":
		return command{name: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return command{name: "force", version: v}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", args[0])
}

func execute(m migrator, cmd command, out io.Writer) error {
	switch cmd.name {
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		fmt.Fprintf(out, "forced version to %d\n", cmd.version)
	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Fprintln(out, "rolled back one migration")
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Fprintf(out, "version %d (dirty=%t)\n", v, dirty)
	default:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Fprintln(out, "migrations complete")
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	db, err := bootstrap.OpenSQLDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Error("failed to create database driver", "error", err)
		os.Exit(1)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("failed to read embedded migrations", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	if err := execute(m, cmd, os.Stdout); err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}
