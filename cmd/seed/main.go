package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/auth"
	"github.com/xtrntr/matchcore/internal/config"
	"github.com/xtrntr/matchcore/internal/db"
	"github.com/xtrntr/matchcore/internal/feed"
	"github.com/xtrntr/matchcore/internal/logging"
)

// Seed the database with the schema, an event stream and an operator account
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	eventsPath := flag.String("events", "testdata/events.txt", "event file to load")
	migration := flag.String("migration", "migrations/001_init.sql", "schema script to apply first")
	username := flag.String("operator", "", "create a reporting API operator with this username")
	password := flag.String("password", os.Getenv("MATCHCORE_OPERATOR_PASSWORD"), "operator password")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(ctx)

	script, err := os.ReadFile(*migration)
	if err != nil {
		logger.Fatal("failed to read migration", zap.Error(err))
	}
	if err := database.Migrate(ctx, string(script)); err != nil {
		logger.Fatal("failed to migrate", zap.Error(err))
	}

	var existing int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&existing); err != nil {
		logger.Fatal("failed to count events", zap.Error(err))
	}
	if existing > 0 {
		fmt.Printf("Database already has %d events. No need to seed.\n", existing)
	} else {
		src, err := feed.OpenFile(*eventsPath)
		if err != nil {
			logger.Fatal("failed to open events", zap.Error(err))
		}
		events, err := feed.ReadAll(ctx, src)
		src.Close()
		if err != nil {
			logger.Fatal("failed to parse events", zap.Error(err))
		}
		if err := database.InsertEvents(ctx, events); err != nil {
			logger.Fatal("failed to insert events", zap.Error(err))
		}
		fmt.Printf("Seeded %d events from %s\n", len(events), *eventsPath)
	}

	if *username == "" {
		return
	}
	svc := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	op, err := svc.Register(ctx, *username, *password)
	if err != nil {
		if db.IsUniqueViolation(err) {
			fmt.Printf("Operator %q already exists\n", *username)
			return
		}
		logger.Fatal("failed to create operator", zap.Error(err))
	}
	fmt.Printf("Created operator %q (id %d)\n", op.Username, op.ID)
}
