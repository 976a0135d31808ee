package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/api"
	"github.com/xtrntr/matchcore/internal/auth"
	"github.com/xtrntr/matchcore/internal/config"
	"github.com/xtrntr/matchcore/internal/db"
	"github.com/xtrntr/matchcore/internal/exchange"
	"github.com/xtrntr/matchcore/internal/feed"
	"github.com/xtrntr/matchcore/internal/logging"
	"github.com/xtrntr/matchcore/internal/metrics"
	"github.com/xtrntr/matchcore/internal/report"
)

// Replays an event stream through the exchange, prints the participant
// report and optionally keeps serving it over HTTP.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	eventsPath := flag.String("events", "", "event file to replay (overrides config)")
	serve := flag.Bool("serve", false, "keep serving the reporting API after the replay")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	if *eventsPath != "" {
		cfg.Events.Source = "file"
		cfg.Events.Path = *eventsPath
	}
	if *serve {
		cfg.Server.Enabled = true
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if cfg.UsesPostgres() {
		database, err = db.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close(ctx)
	}

	m := metrics.New()
	opts := []exchange.EngineOption{
		exchange.WithEngineLogger(logger),
		exchange.WithRecorder(m),
	}

	var hub *api.Hub
	if cfg.Server.Enabled {
		hub = api.NewHub(logger, originChecker(cfg.Server.AllowedOrigins))
		opts = append(opts, exchange.WithTradeHandler(hub.BroadcastTrade))
	}

	var trades *db.TradeWriter
	if database != nil && cfg.Report.Sink != "stdout" {
		trades = db.NewTradeWriter(database, logger, max(cfg.Engine.QueueSize, 64))
		opts = append(opts, exchange.WithTradeHandler(trades.Enqueue))
	}

	ex := exchange.NewExchange(exchange.WithLogger(logger))
	engine := exchange.NewEngine(ex, exchange.EngineConfig{
		QueueSize:    cfg.Engine.QueueSize,
		RecentTrades: cfg.Engine.RecentTrades,
	}, opts...)
	defer engine.Stop()

	if err := replay(ctx, logger, cfg, engine, database); err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}
	if trades != nil {
		trades.Close()
	}

	participants, err := engine.Snapshot(ctx)
	if err != nil {
		logger.Fatal("failed to snapshot participants", zap.Error(err))
	}
	if cfg.Report.Sink == "stdout" || cfg.Report.Sink == "both" {
		if err := report.Write(os.Stdout, participants); err != nil {
			logger.Fatal("failed to write report", zap.Error(err))
		}
	}
	if cfg.Report.Sink == "postgres" || cfg.Report.Sink == "both" {
		if err := database.SaveReport(ctx, participants); err != nil {
			logger.Fatal("failed to save report", zap.Error(err))
		}
		logger.Info("report saved", zap.Int("participants", len(participants)))
	}

	if !cfg.Server.Enabled {
		return
	}
	if err := serveAPI(ctx, logger, cfg, engine, database, hub, m); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	if cfg.File != "" {
		return logging.NewLoggerWithFile(cfg.Level, cfg.File)
	}
	return logging.NewLogger(cfg.Level)
}

func replay(ctx context.Context, logger *zap.Logger, cfg config.Config, engine *exchange.Engine, database *db.DB) error {
	var src feed.Source
	switch cfg.Events.Source {
	case "postgres":
		src = database.NewEventSource(500)
	default:
		f, err := feed.OpenFile(cfg.Events.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	start := time.Now()
	n, err := engine.Replay(ctx, src)
	if err != nil {
		return err
	}
	logger.Info("replay finished",
		zap.String("source", cfg.Events.Source),
		zap.Int("events", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func serveAPI(ctx context.Context, logger *zap.Logger, cfg config.Config, engine *exchange.Engine, database *db.DB, hub *api.Hub, m *metrics.Metrics) error {
	var store auth.OperatorStore
	var history api.History
	if database != nil {
		store = database
		history = database
	} else {
		hashes := make(map[string]string, len(cfg.Auth.Operators))
		for _, op := range cfg.Auth.Operators {
			hashes[op.Username] = op.PasswordHash
		}
		store = auth.NewStaticStore(hashes)
	}
	authService := auth.NewAuthService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	handler := api.NewHandler(engine, authService, history, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m.Handler(),
		Hub:            hub,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	go hub.RunBookBroadcast(ctx, cfg.Server.BroadcastInterval, func(ctx context.Context) (api.OrderBook, error) {
		return handler.OrderBook(ctx, "")
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}
