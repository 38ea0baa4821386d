package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "relaychat:", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_FILE")
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return 2, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting RelayChat",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"origins", cfg.AllowedOrigins,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	hub := chat.NewHub(st, logger.With("component", "hub"), chat.WithBroadcastCapacity(cfg.BroadcastCapacity))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AuthTokenDuration)
	accounts := auth.NewService(st, tokens, logger.With("component", "auth"))
	srv := server.New(cfg, hub, st, accounts, logger.With("component", "http"))

	if err := srv.ListenAndServe(ctx); err != nil {
		return 1, err
	}
	logger.Info("RelayChat stopped")
	return 0, nil
}

func openStore(ctx context.Context, cfg server.Config, logger *slog.Logger) (store.Store, error) {
	log := logger.With("component", "store")

	switch cfg.StoreDriver {
	case server.StorePostgres:
		pool, err := store.Connect(ctx, store.PostgresConfig{
			URL:      cfg.DatabaseURL,
			MinConns: cfg.DBMinConns,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(pool, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("postgres store ready")
		return pg, nil
	default:
		db, err := store.OpenBadger(cfg.BadgerPath, log)
		if err != nil {
			return nil, err
		}
		log.Info("badger store ready", "path", cfg.BadgerPath)
		return db, nil
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
