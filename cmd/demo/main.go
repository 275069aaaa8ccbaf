// The demo binary kicks a saga off: it writes one PENDING booking plus its
// BookingRequested outbox record into the booking service's database and
// exits. The running booking service's relay picks the record up and the
// choreography takes it from there.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hiennm11/booking-saga/booking"
	"github.com/hiennm11/booking-saga/config"
	"github.com/hiennm11/booking-saga/outbox"
)

func main() {
	// Shares the booking service's database; DATABASE_DSN overrides.
	cfg := config.Load("booking")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "demo")
	slog.SetDefault(logger)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}

	outboxStore := outbox.NewGormStore(db, outbox.WithMaxRetries(cfg.RelayMaxRetries))
	repo := booking.NewGormRepository(db, outboxStore)
	for _, migrate := range []func() error{outboxStore.AutoMigrate, repo.AutoMigrate} {
		if err := migrate(); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	service := booking.NewService(repo, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := service.CreateBooking(ctx, booking.CreateBookingInput{
		UserID:   cfg.DemoUserID,
		ItemID:   cfg.DemoItemID,
		Quantity: cfg.DemoQuantity,
		Amount:   cfg.DemoAmount,
	})
	if err != nil {
		logger.Error("demo booking failed", "error", err)
		os.Exit(1)
	}

	logger.Info("demo booking created, saga started",
		"booking_id", b.ID,
		"correlation_id", b.CorrelationID,
		"item_id", b.ItemID,
		"quantity", b.Quantity,
		"amount", b.Amount)
}
