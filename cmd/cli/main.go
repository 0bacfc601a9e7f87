package main

import (
	"os"
	"strings"

	"github.com/nimasrn/congregation-messenger/internal/config"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/pg"
)

// cli --env=.env --dir=./migrations
func main() {
	defer logger.Sync() //nolint
	if err := config.Load(argOrDefault("--env=", ".env")); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if cfg.StoreDriver != "postgres" {
		logger.Info("migration: nothing to migrate", "driver", cfg.StoreDriver)
		return
	}

	dir := argOrDefault("--dir=", "./migrations")
	if dir == "" {
		logger.Error("migration: no migrations dir")
		return
	}
	err := pg.Migrate(pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}, dir)
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		return
	}
	logger.Info("migration: done", "dir", dir)
}

// argOrDefault returns the value of a --key= argument, or fallback, as long as
// the path exists. A missing path yields "".
func argOrDefault(prefix, fallback string) string {
	path := fallback
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			path = strings.TrimPrefix(v, prefix)
			break
		}
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warn("path not usable", "arg", strings.TrimSuffix(prefix, "="), "path", path, "error", err)
		return ""
	}
	return path
}
