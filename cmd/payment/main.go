package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hiennm11/booking-saga/config"
	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/deadletter"
	"github.com/hiennm11/booking-saga/internal/app"
	"github.com/hiennm11/booking-saga/messaging"
	"github.com/hiennm11/booking-saga/outbox"
	"github.com/hiennm11/booking-saga/payment"
)

func main() {
	cfg := config.Load("payment")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}

	outboxStore := outbox.NewGormStore(db, outbox.WithMaxRetries(cfg.RelayMaxRetries))
	deadLetters := deadletter.NewGormStore(db)
	repo := payment.NewGormRepository(db, outboxStore)
	for _, migrate := range []func() error{outboxStore.AutoMigrate, deadLetters.AutoMigrate, repo.AutoMigrate} {
		if err := migrate(); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	dedup := messaging.NewRedisDedupStore(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}))

	service := payment.NewService(repo, &payment.DemoGateway{DeclineOver: cfg.DemoDeclineOver}, logger)

	instance := app.New(app.Options{
		Config:      cfg,
		Logger:      logger,
		Outbox:      outboxStore,
		DeadLetters: deadLetters,
		Dedup:       dedup,
		Subscriptions: []app.Subscription{
			{Queue: contracts.EventSeatReserved, Handler: service.HandleSeatReserved},
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := instance.Run(ctx, contracts.SagaQueues); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service exited", "error", err)
		os.Exit(1)
	}
}
