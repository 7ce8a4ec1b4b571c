package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

// AccountRepository stores one lookup space. API keys are embedded in the
// account document, reset tokens live in their own collection.
type AccountRepository struct {
	Collection *mongo.Collection
	Resets     *mongo.Collection
}

func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Email = strings.ToLower(a.Email)
	if a.APIKeys == nil {
		a.APIKeys = []model.APIKey{}
	}

	if _, err := r.Collection.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appErrors.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	var a model.Account
	if err := r.Collection.FindOne(ctx, filter).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *AccountRepository) FindByAPIKey(ctx context.Context, tokenHash string) (*model.Account, error) {
	a, err := r.findOne(ctx, bson.M{"api_keys.token": tokenHash})
	if errors.Is(err, appErrors.ErrAccountNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepository) AddAPIKey(ctx context.Context, accountID string, key model.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	return r.update(ctx, accountID, bson.M{"$push": bson.M{"api_keys": key}})
}

func (r *AccountRepository) RemoveAPIKey(ctx context.Context, tokenHash string) error {
	_, err := r.Collection.UpdateOne(ctx,
		bson.M{"api_keys.token": tokenHash},
		bson.M{"$pull": bson.M{"api_keys": bson.M{"token": tokenHash}}})
	if err != nil {
		return fmt.Errorf("failed to remove api key: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	return r.update(ctx, accountID, bson.M{
		"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()},
	})
}

func (r *AccountRepository) UpdateProfileImage(ctx context.Context, accountID, url string) error {
	return r.update(ctx, accountID, bson.M{
		"$set": bson.M{"profile_image_url": url, "updated_at": time.Now().UTC()},
	})
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	n, err := r.Collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return int(n), nil
}

func (r *AccountRepository) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if _, err := r.Resets.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	if err := r.Resets.FindOneAndDelete(ctx, bson.M{"_id": tokenHash}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.ErrInvalidResetToken
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return &t, nil
}

func (r *AccountRepository) update(ctx context.Context, id string, update bson.M) error {
	result, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.MatchedCount == 0 {
		return appErrors.ErrAccountNotFound
	}
	return nil
}

var _ repository.AccountRepositoryInterface = (*AccountRepository)(nil)
