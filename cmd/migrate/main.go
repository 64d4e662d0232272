package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/age-b2b/backoffice/internal/app"
	"github.com/age-b2b/backoffice/internal/platform/db"
)

func main() {
	down := flag.Int("down", 0, "roll back the given number of migrations")
	version := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch {
	case *version:
		v, dirty, err := db.MigrationVersion(cfg.PGDSN)
		if err != nil {
			logger.Error("read migration version", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	case *down > 0:
		if err := db.Rollback(cfg.PGDSN, *down, logger); err != nil {
			logger.Error("rollback migrations", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
