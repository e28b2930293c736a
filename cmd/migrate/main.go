package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/telemetry"
)

func main() {
	command := flag.String("direction", "up", "up, down, version or force")
	steps := flag.Int("steps", 0, "number of steps for up/down (0 = all), target version for force")
	dbURL := flag.String("db-url", "", "database URL (overrides DATABASE_URL and the relay config)")
	configDir := flag.String("config", "configs", "relay configuration directory used when no URL is given")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	logger := telemetry.NewLogger(os.Stderr, "info", "text")

	dsn, err := resolveDSN(*dbURL, *configDir)
	if err != nil {
		logger.Error("no database configured", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(*migrationsPath), dsn)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *command {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "force":
		err = m.Force(*steps)
	case "version":
	default:
		logger.Error("invalid direction", "direction", *command)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "direction", *command, "error", err)
		os.Exit(1)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("migration complete", "direction", *command, "version", v, "dirty", dirty)
}

// resolveDSN prefers the flag, then DATABASE_URL, then the database section of relay.yaml.
func resolveDSN(flagURL, configDir string) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFile(filepath.Join(configDir, "relay.yaml"), cfg); err != nil {
		return "", err
	}
	db := cfg.Database
	if db.Host == "" {
		return "", fmt.Errorf("database.host is empty in %s", configDir)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", db.User, db.Password, db.Host, db.Port, db.Name), nil
}
