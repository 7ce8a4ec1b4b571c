package repository

import (
	"context"

	"github.com/unclebandit/charityng-backend/internal/model"
)

// CampaignRepositoryInterface is implemented by every campaign backend.
type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context, filter model.CampaignFilter, offset, limit int) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error
	AddResource(ctx context.Context, campaignID string, r *model.Resource) error
	// UpdateResource writes name, type and quantity. The reference list is
	// left untouched.
	UpdateResource(ctx context.Context, campaignID string, r *model.Resource) error
	// AppendFulfillmentReference atomically adds fulfillmentID to the
	// resource. Appending an id that is already present is a no-op.
	AppendFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error
	RemoveFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error
	AddMedia(ctx context.Context, campaignID, url string) error
	RemoveMedia(ctx context.Context, campaignID, url string) error
	Delete(ctx context.Context, id string) error
}

// CascadeDeleter is implemented by backends that can remove a campaign and
// its fulfillments in one transaction.
type CascadeDeleter interface {
	DeleteCascade(ctx context.Context, campaignID string) error
}

// FulfillmentRepositoryInterface is implemented by every fulfillment backend.
type FulfillmentRepositoryInterface interface {
	Create(ctx context.Context, f *model.Fulfillment) error
	GetByID(ctx context.Context, id string) (*model.Fulfillment, error)
	List(ctx context.Context, filter model.FulfillmentFilter) ([]*model.Fulfillment, error)
	UpdateStatus(ctx context.Context, id string, status model.FulfillmentStatus) error
	AppendMessage(ctx context.Context, fulfillmentID string, m *model.Message) error
	// MarkMessagesRead marks unread messages written by staff (byStaff) or
	// by the user (!byStaff) as read and returns how many changed.
	MarkMessagesRead(ctx context.Context, fulfillmentID string, byStaff bool) (int, error)
	DeleteByCampaign(ctx context.Context, campaignID string) (int, error)
	// CampaignIDs lists the distinct campaigns that fulfillments point at.
	CampaignIDs(ctx context.Context) ([]string, error)
	CountByStatus(ctx context.Context, campaignID string) (map[model.FulfillmentStatus]int, error)
}

// AccountRepositoryInterface is one credential lookup space (users or staff).
type AccountRepositoryInterface interface {
	Create(ctx context.Context, a *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// FindByAPIKey returns nil, nil when no account owns the key.
	FindByAPIKey(ctx context.Context, tokenHash string) (*model.Account, error)
	AddAPIKey(ctx context.Context, accountID string, key model.APIKey) error
	RemoveAPIKey(ctx context.Context, tokenHash string) error
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
	UpdateProfileImage(ctx context.Context, accountID, url string) error
	Count(ctx context.Context) (int, error)
	CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error
	// ConsumeResetToken deletes and returns the token.
	ConsumeResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
}

// Space names a credential lookup space. It doubles as the table or
// collection prefix.
type Space string

const (
	SpaceUsers Space = "users"
	SpaceStaff Space = "staff"
)
