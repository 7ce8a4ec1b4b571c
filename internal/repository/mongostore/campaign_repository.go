package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

type CampaignRepository struct {
	Collection *mongo.Collection
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	// Nil slices encode as null and break $push/$addToSet later.
	if c.MediaList == nil {
		c.MediaList = []string{}
	}
	if c.Resources == nil {
		c.Resources = []model.Resource{}
	}
	for i := range c.Resources {
		if c.Resources[i].Fulfillments == nil {
			c.Resources[i].Fulfillments = []string{}
		}
	}

	if _, err := r.Collection.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	if err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepository) List(ctx context.Context, filter model.CampaignFilter, offset, limit int) ([]*model.Campaign, int, error) {
	query := bson.M{}
	if filter.Search != "" {
		pattern := caseInsensitive(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	total, err := r.Collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	out := []*model.Campaign{}
	if offset < 0 || int64(offset) >= total {
		return out, int(total), nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode campaigns: %w", err)
	}
	return out, int(total), nil
}

func caseInsensitive(search string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	return r.updateCampaign(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now().UTC()},
	}, appErrors.ErrCampaignNotFound)
}

func (r *CampaignRepository) AddResource(ctx context.Context, campaignID string, res *model.Resource) error {
	if res.Fulfillments == nil {
		res.Fulfillments = []string{}
	}
	return r.updateCampaign(ctx, bson.M{"_id": campaignID}, bson.M{
		"$push": bson.M{"resources": res},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}, appErrors.ErrCampaignNotFound)
}

func (r *CampaignRepository) UpdateResource(ctx context.Context, campaignID string, res *model.Resource) error {
	if _, err := r.GetByID(ctx, campaignID); err != nil {
		return err
	}
	return r.updateCampaign(ctx, bson.M{"_id": campaignID, "resources._id": res.ID}, bson.M{
		"$set": bson.M{
			"resources.$.name":     res.Name,
			"resources.$.type":     res.Type,
			"resources.$.quantity": res.Quantity,
			"updated_at":           time.Now().UTC(),
		},
	}, appErrors.ErrResourceNotFound)
}

// AppendFulfillmentReference is one server-side $addToSet, so concurrent
// appends to the same resource never overwrite each other.
func (r *CampaignRepository) AppendFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	return r.updateCampaign(ctx, bson.M{"_id": campaignID, "resources._id": resourceID}, bson.M{
		"$addToSet": bson.M{"resources.$.fulfillments": fulfillmentID},
	}, appErrors.ErrResourceNotFound)
}

func (r *CampaignRepository) RemoveFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	return r.updateCampaign(ctx, bson.M{"_id": campaignID, "resources._id": resourceID}, bson.M{
		"$pull": bson.M{"resources.$.fulfillments": fulfillmentID},
	}, appErrors.ErrResourceNotFound)
}

func (r *CampaignRepository) AddMedia(ctx context.Context, campaignID, url string) error {
	return r.updateCampaign(ctx, bson.M{"_id": campaignID}, bson.M{
		"$push": bson.M{"media_list": url},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}, appErrors.ErrCampaignNotFound)
}

func (r *CampaignRepository) RemoveMedia(ctx context.Context, campaignID, url string) error {
	err := r.updateCampaign(ctx, bson.M{"_id": campaignID, "media_list": url}, bson.M{
		"$pull": bson.M{"media_list": url},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}, appErrors.ErrMediaNotFound)
	if errors.Is(err, appErrors.ErrMediaNotFound) {
		if _, getErr := r.GetByID(ctx, campaignID); getErr != nil {
			return getErr
		}
	}
	return err
}

func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if result.DeletedCount == 0 {
		return appErrors.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepository) updateCampaign(ctx context.Context, filter, update bson.M, notFound error) error {
	result, err := r.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if result.MatchedCount == 0 {
		return notFound
	}
	return nil
}

var _ repository.CampaignRepositoryInterface = (*CampaignRepository)(nil)
