// Package mongostore implements the repositories on MongoDB. Campaigns are
// stored as one document with embedded resources so reference appends are a
// single positional $addToSet.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

const (
	campaignsCollection    = "campaigns"
	fulfillmentsCollection = "fulfillments"
)

// Store owns the client and hands out repositories bound to one database.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect opens the client, pings the server and ensures indexes.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo connection URI is empty")
	}

	clientOptions := options.Client().ApplyURI(cfg.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{Client: client, DB: client.Database(cfg.Database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.L().WithField("db", cfg.Database).Info("connected to MongoDB")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		campaignsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		fulfillmentsCollection: {
			{Keys: bson.D{{Key: "campaign_id", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "resources.resource_id", Value: 1}}},
		},
	}
	for _, space := range []repository.Space{repository.SpaceUsers, repository.SpaceStaff} {
		indexes[string(space)] = []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "api_keys.token", Value: 1}}},
		}
	}

	for name, models := range indexes {
		if _, err := s.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Campaigns() *CampaignRepository {
	return &CampaignRepository{Collection: s.DB.Collection(campaignsCollection)}
}

func (s *Store) Fulfillments() *FulfillmentRepository {
	return &FulfillmentRepository{Collection: s.DB.Collection(fulfillmentsCollection)}
}

func (s *Store) Accounts(space repository.Space) *AccountRepository {
	return &AccountRepository{
		Collection: s.DB.Collection(string(space)),
		Resets:     s.DB.Collection(string(space) + "_reset_tokens"),
	}
}

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.Client.Disconnect(ctx); err != nil {
		logger.L().WithError(err).Error("failed to disconnect MongoDB client")
		return err
	}
	return nil
}
