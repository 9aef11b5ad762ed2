package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mailtriage/internal/mailer"
	"mailtriage/internal/notifyhandler"
	"mailtriage/pkg/config"
	"mailtriage/pkg/mq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("starting mailtriage notifier")

	// 2. Init the mail transport
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)

	// 3. Init handlers, one per routing key
	completedHandler := notifyhandler.NewRunCompletedHandler(smtpMailer, logger)
	errorHandler := notifyhandler.NewRunErrorHandler(smtpMailer, logger)
	timeoutHandler := notifyhandler.NewRunTimeoutHandler(smtpMailer, logger)
	digestHandler := notifyhandler.NewDigestSentHandler(logger)

	// (1) Consumer for run.completed
	consumerCompleted, err := mq.NewConsumer(cfg.MQ.URL, "notifications.run_completed.q", mq.RoutingKeyRunCompleted, logger)
	if err != nil {
		logger.Fatal("failed to init run.completed consumer", zap.Error(err))
	}
	consumerCompleted.SetHandler(completedHandler.Handle)
	go func() {
		if err := consumerCompleted.StartConsuming(); err != nil {
			logger.Fatal("run.completed consumer failed", zap.Error(err))
		}
	}()
	defer consumerCompleted.Close()

	// (2) Consumer for run.error
	consumerError, err := mq.NewConsumer(cfg.MQ.URL, "notifications.run_error.q", mq.RoutingKeyRunError, logger)
	if err != nil {
		logger.Fatal("failed to init run.error consumer", zap.Error(err))
	}
	consumerError.SetHandler(errorHandler.Handle)
	go func() {
		if err := consumerError.StartConsuming(); err != nil {
			logger.Fatal("run.error consumer failed", zap.Error(err))
		}
	}()
	defer consumerError.Close()

	// (3) Consumer for run.timeout
	consumerTimeout, err := mq.NewConsumer(cfg.MQ.URL, "notifications.run_timeout.q", mq.RoutingKeyRunTimeout, logger)
	if err != nil {
		logger.Fatal("failed to init run.timeout consumer", zap.Error(err))
	}
	consumerTimeout.SetHandler(timeoutHandler.Handle)
	go func() {
		if err := consumerTimeout.StartConsuming(); err != nil {
			logger.Fatal("run.timeout consumer failed", zap.Error(err))
		}
	}()
	defer consumerTimeout.Close()

	// (4) Consumer for digest.sent
	consumerDigest, err := mq.NewConsumer(cfg.MQ.URL, "notifications.digest_sent.q", mq.RoutingKeyDigestSent, logger)
	if err != nil {
		logger.Fatal("failed to init digest.sent consumer", zap.Error(err))
	}
	consumerDigest.SetHandler(digestHandler.Handle)
	go func() {
		if err := consumerDigest.StartConsuming(); err != nil {
			logger.Fatal("digest.sent consumer failed", zap.Error(err))
		}
	}()
	defer consumerDigest.Close()

	logger.Info("all consumers started, notifier is ready")

	<-ctx.Done()
	logger.Info("shutting down notifier")
}
