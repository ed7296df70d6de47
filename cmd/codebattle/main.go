package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codebattle/codebattle/internal/api"
	"github.com/codebattle/codebattle/internal/auth"
	"github.com/codebattle/codebattle/internal/battle"
	"github.com/codebattle/codebattle/internal/codeforces"
	"github.com/codebattle/codebattle/internal/config"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/pubsub"
	"github.com/codebattle/codebattle/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var Version = "dev-build"

func main() {

	fmt.Fprintf(os.Stderr, "codebattle %s - Codeforces battle server\n\n", Version)

	// config
	var configPath string
	flag.StringVar(&configPath, "c", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// logger
	var logger *zap.Logger
	if cfg.Logger.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// database
	db, err := database.Init(cfg.Storage.Database)
	if err != nil {
		zap.S().Fatalf("failed to initialize database: %v", err)
	}
	zap.S().Info("database initialized successfully")

	// scheduler backed by redis; a down backend degrades to manual triggers
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	sched := scheduler.New(rdb, cfg.Battle.ProcessEvery(), cfg.Battle.SchedulerProbe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// core services
	broker := pubsub.NewBroker()
	cf := codeforces.NewClient(cfg.Codeforces.BaseURL, cfg.Codeforces.MinInterval())
	battles := battle.NewService(db, cf, sched, broker, cfg.Battle.PollInterval())
	battles.RegisterHandlers(sched)

	// re-arm schedules for battles that were live before the restart
	sched.Probe(ctx)
	if err := battles.RecoverSchedules(ctx); err != nil {
		zap.S().Errorf("failed to recover battle schedules: %v", err)
	}

	go sched.Run(ctx)
	zap.S().Info("battle scheduler started")

	// OIDC login (optional)
	var oidcHandler *auth.OIDCHandler
	if cfg.Auth.OIDC.Enabled {
		oidcHandler, err = auth.NewOIDCHandler(ctx, cfg, db)
		if err != nil {
			zap.S().Fatalf("failed to initialize OIDC provider: %v", err)
		}
	}

	// API router
	engine := api.NewRouter(cfg, db, battles, broker, oidcHandler)

	go func() {
		zap.S().Infof("starting server at %s", cfg.Listen)
		if err := engine.Run(cfg.Listen); err != nil {
			zap.S().Fatalf("failed to start server: %v", err)
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down server...")
}
