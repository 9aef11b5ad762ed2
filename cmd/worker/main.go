package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/api"
	"mailtriage/internal/engine"
	"mailtriage/internal/llmclient"
	"mailtriage/internal/lock"
	"mailtriage/internal/mailer"
	"mailtriage/internal/mailstore"
	"mailtriage/internal/store"
	"mailtriage/internal/trigger"
	"mailtriage/internal/util"
	"mailtriage/pkg/config"
	"mailtriage/pkg/db"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
	"mailtriage/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("starting mailtriage worker")

	// 2. Apply schema migrations
	if err := db.Migrate(cfg.DB, ""); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// 3. Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("db initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// 4. Init Redis
	rdb := redis.New(cfg.Redis)
	defer rdb.Close()

	// 5. Init storage
	kv := store.NewKVStore(dbConn)
	blob := store.NewBlobStore(dbConn)
	runHistory := store.NewRunHistory(dbConn)
	locks := lock.New(kv, rdb)
	dedup := util.NewDeduper(rdb, time.Hour, logger)

	// 6. Init the trigger registry
	triggers := trigger.New(dbConn, logger)

	// 7. Init the outbox and MQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init mq publisher", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(dbConn)
	outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger)
	replay := outbox.NewReplayService(outboxRepo, publisher)
	go outboxDispatcher.Start(ctx)

	// 8. Init domain clients
	mailStore := mailstore.NewHTTPStore(cfg.MailProvider.BaseURL)
	llmClient := llmclient.NewOpenAIClient(cfg.Triage.OpenAIAPIKey, "")
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	clock, err := engine.NewSystemClock(cfg.Triage.TimeZone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	// 9. Wire the engine
	eng := engine.New(engine.Deps{
		KV:         kv,
		Blob:       blob,
		RunHistory: runHistory,
		Locks:      locks,
		Triggers:   triggers,
		Mail:       mailStore,
		LLM:        llmClient,
		Mailer:     smtpMailer,
		OutboxRepo: outboxRepo,
		DB:         dbConn,
		Dedup:      dedup,
		Config:     cfg.Triage,
		Clock:      clock,
		Logger:     logger,
	})
	eng.RegisterHandlers(triggers)

	if !cfg.Triage.IsComplete() {
		logger.Warn("openaiApiKey is not configured; dispatcher will idle and the passive pass will never run")
	}
	if err := eng.EnsureDispatcher(ctx); err != nil {
		logger.Fatal("failed to install dispatcher trigger", zap.Error(err))
	}

	// 10. Start the trigger poll loop; drives Dispatcher.Tick and chunk kickoffs
	go triggers.Run(ctx)

	// 11. Start the admin HTTP API
	statusHandler := api.NewStatusHandler(kv, locks, runHistory, triggers)
	scanHandler := api.NewScanHandler(eng)
	replayHandler := api.NewReplayHandler(replay)
	router := api.NewRouter(statusHandler, scanHandler, replayHandler, cfg.JWT.Secret)

	go func() {
		logger.Info("admin api listening", zap.String("port", cfg.Server.Port))
		if err := router.Run(cfg.Server.Port); err != nil {
			logger.Fatal("admin api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")
}
