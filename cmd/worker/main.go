package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/charityng-backend/internal/cache"
	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/queue"
	"github.com/unclebandit/charityng-backend/internal/service"
	"github.com/unclebandit/charityng-backend/internal/store"
)

// The worker consumes reference repair jobs from the broker and runs the
// periodic reconciliation sweep.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.L().WithError(err).Fatal("failed to load config")
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.IsProduction()); err != nil {
		logger.L().WithError(err).Fatal("failed to init logger")
	}
	log := logger.L()

	if cfg.AMQP.URL == "" {
		log.Fatal("AMQP_URL is required, without a broker the server runs repairs itself")
	}

	stores, err := store.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer stores.Close(context.Background())

	bus, err := queue.NewAMQPQueue(cfg.AMQP.URL, queue.TopicCacheInvalidate)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to broker")
	}
	defer bus.Close()

	coordinator := newCoordinator(stores, bus, cfg)
	if err := queue.StartReferenceRepairSubscriber(bus, coordinator); err != nil {
		log.WithError(err).Fatal("failed to subscribe to reference repairs")
	}

	log.WithField("interval", cfg.Workflow.ReconcileInterval.String()).Info("worker running, waiting for repair jobs")
	service.NewWorker(coordinator, cfg.Workflow.ReconcileInterval).Start(ctx)
	log.Info("worker stopped")
}

// newCoordinator builds a coordinator whose invalidations reach the API
// replicas through the bus.
func newCoordinator(stores *store.Stores, bus queue.Queue, cfg *config.Config) *service.Coordinator {
	return &service.Coordinator{
		CampaignRepo:    stores.Campaigns,
		FulfillmentRepo: stores.Fulfillments,
		Queue:           bus,
		Cache:           cache.New(bus, cfg.Cache.TTL),
	}
}
