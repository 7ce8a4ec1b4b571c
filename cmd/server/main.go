// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/unclebandit/charityng-backend/internal/cache"
	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/controller"
	"github.com/unclebandit/charityng-backend/internal/handler"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/mail"
	"github.com/unclebandit/charityng-backend/internal/queue"
	"github.com/unclebandit/charityng-backend/internal/service"
	"github.com/unclebandit/charityng-backend/internal/storage"
	"github.com/unclebandit/charityng-backend/internal/store"
)

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

	stores, err := store.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer stores.Close(context.Background())

	// Without a broker everything runs in this process, including the
	// repair consumer and the periodic sweep.
	var bus queue.Queue
	inProcess := cfg.AMQP.URL == ""
	if inProcess {
		bus = queue.NewInMemoryQueue()
	} else {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, queue.TopicCacheInvalidate)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to broker")
		}
		bus = amqpQueue
	}
	defer bus.Close()

	c := cache.New(bus, cfg.Cache.TTL)
	if err := c.Start(); err != nil {
		log.WithError(err).Fatal("failed to subscribe to cache invalidations")
	}

	var objects storage.ObjectStore
	if cfg.S3.Bucket != "" {
		objects, err = storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.WithError(err).Fatal("failed to init object storage")
		}
	} else {
		log.Warn("S3_BUCKET_NAME not set, uploads are kept in memory")
		objects = storage.NewMemoryStore()
	}

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP)
	}

	workflow := service.Workflow{Strict: cfg.Workflow.Strict}
	coordinator := &service.Coordinator{
		CampaignRepo:    stores.Campaigns,
		FulfillmentRepo: stores.Fulfillments,
		Queue:           bus,
		Cache:           c,
	}
	campaignService := &service.CampaignService{
		CampaignRepo:    stores.Campaigns,
		FulfillmentRepo: stores.Fulfillments,
		Storage:         objects,
		Cache:           c,
		Workflow:        workflow,
	}
	fulfillmentService := &service.FulfillmentService{
		CampaignRepo:    stores.Campaigns,
		FulfillmentRepo: stores.Fulfillments,
		Coordinator:     coordinator,
		Cache:           c,
		Workflow:        workflow,
	}
	identity := &service.IdentityService{
		Users:         stores.Users,
		Staff:         stores.Staff,
		Storage:       objects,
		Mailer:        mailer,
		ResetTokenTTL: cfg.Workflow.ResetTokenTTL,
	}

	if _, err := identity.BootstrapStaff(ctx, cfg.App.AdminEmail, cfg.App.AdminPassword); err != nil {
		log.WithError(err).Fatal("failed to bootstrap staff user")
	}

	if inProcess {
		if err := queue.StartReferenceRepairSubscriber(bus, coordinator); err != nil {
			log.WithError(err).Fatal("failed to subscribe to reference repairs")
		}
		go service.NewWorker(coordinator, cfg.Workflow.ReconcileInterval).Start(ctx)
	}

	pledgeLimit := controller.NewRateLimiter(cfg.Server.PledgeRate, cfg.Server.PledgeBurst)
	go pledgeLimit.Start(ctx)

	router := &controller.Router{
		Campaigns: &controller.CampaignController{
			CampaignService: campaignService,
			Coordinator:     coordinator,
			MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		},
		Fulfillments: &controller.FulfillmentController{Fulfillments: fulfillmentService},
		Auth:         &controller.AuthController{Identity: identity, MaxUploadBytes: cfg.Server.MaxUploadBytes},
		Health:       handler.NewHealthHandler(stores.Driver, stores.Ping),
		Resolver:     identity,
		PledgeLimit:  pledgeLimit,
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      h2c.NewHandler(router.Handler(), &http2.Server{}),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).WithField("store", stores.Driver).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
