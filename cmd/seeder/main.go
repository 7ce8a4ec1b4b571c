// cmd/seeder/main.go
package main

import (
	"context"
	"time"

	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/mail"
	"github.com/unclebandit/charityng-backend/internal/service"
	"github.com/unclebandit/charityng-backend/internal/store"
)

// The seeder prepares a backend: schema (postgres) or indexes (mongo), then
// the first staff user from ADMIN_USER_EMAIL and ADMIN_USER_PASSWORD.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

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

	identity := &service.IdentityService{
		Users:  stores.Users,
		Staff:  stores.Staff,
		Mailer: mail.LogMailer{},
	}
	created, err := identity.BootstrapStaff(ctx, cfg.App.AdminEmail, cfg.App.AdminPassword)
	if err != nil {
		log.WithError(err).Fatal("failed to seed staff user")
	}

	log.WithField("staff_created", created).WithField("store", stores.Driver).Info("seeding completed")
}
