// Package app assembles one service instance: connection manager, topology,
// outbox relay and one consumer loop per subscribed queue. The three services
// differ only in their stores and handler callbacks, so the wiring lives here
// once.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hiennm11/booking-saga/config"
	"github.com/hiennm11/booking-saga/deadletter"
	"github.com/hiennm11/booking-saga/internal/rabbitmq"
	"github.com/hiennm11/booking-saga/internal/reliability"
	"github.com/hiennm11/booking-saga/messaging"
	"github.com/hiennm11/booking-saga/outbox"
)

// Subscription binds one queue to one handler callback.
type Subscription struct {
	Queue   string
	Handler messaging.Handler
}

// Options collects the per-service pieces the shared runtime assembles.
type Options struct {
	Config        *config.Config
	Logger        *slog.Logger
	Outbox        outbox.Store
	DeadLetters   deadletter.Store
	Dedup         messaging.DedupStore
	Subscriptions []Subscription
}

// App runs one service instance: one relay loop plus one consumer loop per
// queue, sharing no mutable state except the durable stores.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	cm         *rabbitmq.ConnectionManager
	topology   *rabbitmq.TopologyManager
	relay      *outbox.Relay
	consumer   *rabbitmq.Consumer
	dispatcher *messaging.Dispatcher
	subs       []Subscription
}

// New assembles a service instance from config and its domain pieces.
func New(opts Options) *App {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", cfg.ServiceName)

	cm := rabbitmq.NewConnectionManager(cfg.AMQPURL,
		rabbitmq.WithConnectPolicy(reliability.NewExponentialBackoff(
			cfg.ConnectBase, cfg.ConnectMax, 2.0, cfg.ConnectAttempts)),
		rabbitmq.WithDialTimeout(cfg.DialTimeout),
		rabbitmq.WithConnectionLogger(logger),
	)

	transport := rabbitmq.NewPublisher(cm,
		rabbitmq.WithPublishPolicy(reliability.NewExponentialBackoff(
			cfg.PublishBase, cfg.PublishMax, 2.0, cfg.PublishAttempts)),
		rabbitmq.WithPublishTimeout(cfg.PublishTimeout),
		rabbitmq.WithConfirmTimeout(cfg.ConfirmTimeout),
		rabbitmq.WithPublisherLogger(logger),
	)

	eventPublisher := messaging.NewEventPublisher(transport)

	dispatcherOpts := []messaging.DispatcherOption{
		messaging.WithHandlerRetryPolicy(reliability.NewExponentialBackoff(
			cfg.HandlerRetryBase, cfg.HandlerRetryMax, 2.0, cfg.HandlerRetryAttempts)),
		messaging.WithMaxRequeueAttempts(cfg.MaxRequeueAttempts),
		messaging.WithRequeueDelay(cfg.RequeueDelay),
		messaging.WithDispatcherLogger(logger),
	}
	if opts.Dedup != nil {
		dispatcherOpts = append(dispatcherOpts, messaging.WithDedupStore(opts.Dedup, cfg.DedupTTL))
	}
	dispatcher := messaging.NewDispatcher(transport, opts.DeadLetters, dispatcherOpts...)

	relay := outbox.NewRelay(opts.Outbox, eventPublisher,
		outbox.WithPollInterval(cfg.RelayPollInterval),
		outbox.WithBatchSize(cfg.RelayBatchSize),
		outbox.WithDrainTimeout(cfg.RelayDrainTimeout),
		outbox.WithRelayLogger(logger),
	)

	consumer := rabbitmq.NewConsumer(cm,
		rabbitmq.WithConsumerTag(cfg.ServiceName),
		rabbitmq.WithConsumerLogger(logger),
	)

	return &App{
		cfg:        cfg,
		logger:     logger,
		cm:         cm,
		topology:   rabbitmq.NewTopologyManager(cm),
		relay:      relay,
		consumer:   consumer,
		dispatcher: dispatcher,
		subs:       opts.Subscriptions,
	}
}

// Run declares the topology this service touches, then blocks running the
// relay and consumers until ctx is cancelled.
func (a *App) Run(ctx context.Context, queues []string) error {
	if err := a.topology.DeclareSagaTopology(ctx, queues); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.relay.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("relay terminated", "error", err)
		}
	}()

	for _, sub := range a.subs {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			fn := a.dispatcher.DeliveryFunc(sub.Queue, sub.Handler)
			if err := a.consumer.Consume(ctx, sub.Queue, fn); err != nil && ctx.Err() == nil {
				a.logger.Error("consumer terminated", "queue", sub.Queue, "error", err)
			}
		}(sub)
	}

	a.logger.Info("service started", "queues", len(a.subs))
	<-ctx.Done()
	wg.Wait()

	if err := a.cm.Close(); err != nil {
		a.logger.Warn("broker connection close failed", "error", err)
	}
	a.logger.Info("service stopped")
	return ctx.Err()
}
