package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

type FulfillmentRepository struct {
	Collection *mongo.Collection
}

func (r *FulfillmentRepository) Create(ctx context.Context, f *model.Fulfillment) error {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.Resources == nil {
		f.Resources = []model.Allocation{}
	}
	if f.Messages == nil {
		f.Messages = []model.Message{}
	}
	for i := range f.Messages {
		if f.Messages[i].CreatedAt.IsZero() {
			f.Messages[i].CreatedAt = now
		}
	}

	if _, err := r.Collection.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("failed to create fulfillment: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) GetByID(ctx context.Context, id string) (*model.Fulfillment, error) {
	var f model.Fulfillment
	if err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appErrors.ErrFulfillmentNotFound
		}
		return nil, fmt.Errorf("failed to get fulfillment: %w", err)
	}
	return &f, nil
}

func (r *FulfillmentRepository) List(ctx context.Context, filter model.FulfillmentFilter) ([]*model.Fulfillment, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.CampaignID != "" {
		query["campaign_id"] = filter.CampaignID
	}
	if filter.ResourceID != "" {
		query["resources.resource_id"] = filter.ResourceID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list fulfillments: %w", err)
	}
	out := []*model.Fulfillment{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode fulfillments: %w", err)
	}
	return out, nil
}

func (r *FulfillmentRepository) UpdateStatus(ctx context.Context, id string, status model.FulfillmentStatus) error {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now().UTC()},
	})
}

func (r *FulfillmentRepository) AppendMessage(ctx context.Context, fulfillmentID string, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.update(ctx, fulfillmentID, bson.M{
		"$push": bson.M{"messages": m},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

// MarkMessagesRead counts the matching messages first and then flips them
// with an array filter.
func (r *FulfillmentRepository) MarkMessagesRead(ctx context.Context, fulfillmentID string, byStaff bool) (int, error) {
	f, err := r.GetByID(ctx, fulfillmentID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range f.Messages {
		if m.Status == model.MessageUnread && m.SentByStaff() == byStaff {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{
			"m.status":   model.MessageUnread,
			"m.staff_id": bson.M{"$exists": byStaff},
		}},
	})
	_, err = r.Collection.UpdateOne(ctx, bson.M{"_id": fulfillmentID}, bson.M{
		"$set": bson.M{"messages.$[m].status": model.MessageRead},
	}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return n, nil
}

func (r *FulfillmentRepository) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	result, err := r.Collection.DeleteMany(ctx, bson.M{"campaign_id": campaignID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete fulfillments: %w", err)
	}
	return int(result.DeletedCount), nil
}

func (r *FulfillmentRepository) CampaignIDs(ctx context.Context) ([]string, error) {
	values, err := r.Collection.Distinct(ctx, "campaign_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list fulfillment campaigns: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *FulfillmentRepository) CountByStatus(ctx context.Context, campaignID string) (map[model.FulfillmentStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"campaign_id": campaignID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count fulfillments: %w", err)
	}

	var groups []struct {
		Status model.FulfillmentStatus `bson:"_id"`
		Count  int                     `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode fulfillment counts: %w", err)
	}

	stats := map[model.FulfillmentStatus]int{
		model.FulfillmentPending:   0,
		model.FulfillmentCompleted: 0,
		model.FulfillmentFailed:    0,
	}
	for _, g := range groups {
		stats[g.Status] = g.Count
	}
	return stats, nil
}

func (r *FulfillmentRepository) update(ctx context.Context, id string, update bson.M) error {
	result, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update fulfillment: %w", err)
	}
	if result.MatchedCount == 0 {
		return appErrors.ErrFulfillmentNotFound
	}
	return nil
}

var _ repository.FulfillmentRepositoryInterface = (*FulfillmentRepository)(nil)
