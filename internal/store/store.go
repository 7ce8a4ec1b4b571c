// Package store opens the repositories of the configured backend.
package store

import (
	"context"
	"fmt"

	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/db"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/repository"
	"github.com/unclebandit/charityng-backend/internal/repository/memory"
	"github.com/unclebandit/charityng-backend/internal/repository/mongostore"
)

// Stores groups the repositories of one backend.
type Stores struct {
	Driver       string
	Campaigns    repository.CampaignRepositoryInterface
	Fulfillments repository.FulfillmentRepositoryInterface
	Users        repository.AccountRepositoryInterface
	Staff        repository.AccountRepositoryInterface

	// Ping checks the backend. Nil for the memory driver.
	Ping  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

// Open connects to the backend named by cfg.StoreDriver. The postgres
// driver applies the schema before returning.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	log := logger.L().WithField("driver", cfg.StoreDriver)

	switch cfg.StoreDriver {
	case "postgres":
		conn, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		return &Stores{
			Driver:       cfg.StoreDriver,
			Campaigns:    &repository.CampaignRepository{DB: conn},
			Fulfillments: &repository.FulfillmentRepository{DB: conn},
			Users:        repository.NewAccountRepository(conn, repository.SpaceUsers),
			Staff:        repository.NewAccountRepository(conn, repository.SpaceStaff),
			Ping:         conn.PingContext,
			Close:        func(context.Context) error { return conn.Close() },
		}, nil

	case "mongo":
		s, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:       cfg.StoreDriver,
			Campaigns:    s.Campaigns(),
			Fulfillments: s.Fulfillments(),
			Users:        s.Accounts(repository.SpaceUsers),
			Staff:        s.Accounts(repository.SpaceStaff),
			Ping:         s.Ping,
			Close:        s.Close,
		}, nil

	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		return &Stores{
			Driver:       cfg.StoreDriver,
			Campaigns:    memory.NewCampaignRepository(),
			Fulfillments: memory.NewFulfillmentRepository(),
			Users:        memory.NewAccountRepository(),
			Staff:        memory.NewAccountRepository(),
			Close:        func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
