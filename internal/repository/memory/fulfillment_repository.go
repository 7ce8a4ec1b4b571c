package memory

import (
	"context"
	"sync"
	"time"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

type FulfillmentRepository struct {
	mu           sync.Mutex
	fulfillments map[string]*model.Fulfillment
	order        []string

	// FailDeleteByCampaign, when set, is returned by DeleteByCampaign.
	FailDeleteByCampaign error
}

func NewFulfillmentRepository() *FulfillmentRepository {
	return &FulfillmentRepository{fulfillments: make(map[string]*model.Fulfillment)}
}

func (r *FulfillmentRepository) Create(ctx context.Context, f *model.Fulfillment) error {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	for i := range f.Messages {
		if f.Messages[i].CreatedAt.IsZero() {
			f.Messages[i].CreatedAt = now
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulfillments[f.ID] = f.Clone()
	r.order = append(r.order, f.ID)
	return nil
}

func (r *FulfillmentRepository) GetByID(ctx context.Context, id string) (*model.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fulfillments[id]
	if !ok {
		return nil, appErrors.ErrFulfillmentNotFound
	}
	return f.Clone(), nil
}

func (r *FulfillmentRepository) List(ctx context.Context, filter model.FulfillmentFilter) ([]*model.Fulfillment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.Fulfillment{}
	for _, id := range r.order {
		f, ok := r.fulfillments[id]
		if !ok {
			continue
		}
		if filter.UserID != "" && f.UserID != filter.UserID {
			continue
		}
		if filter.CampaignID != "" && f.CampaignID != filter.CampaignID {
			continue
		}
		if filter.ResourceID != "" && !f.Targets(filter.ResourceID) {
			continue
		}
		out = append(out, f.Clone())
	}
	return out, nil
}

func (r *FulfillmentRepository) UpdateStatus(ctx context.Context, id string, status model.FulfillmentStatus) error {
	return r.mutate(id, func(f *model.Fulfillment) {
		f.Status = status
	})
}

func (r *FulfillmentRepository) AppendMessage(ctx context.Context, fulfillmentID string, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.mutate(fulfillmentID, func(f *model.Fulfillment) {
		f.Messages = append(f.Messages, *m)
	})
}

func (r *FulfillmentRepository) MarkMessagesRead(ctx context.Context, fulfillmentID string, byStaff bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fulfillments[fulfillmentID]
	if !ok {
		return 0, appErrors.ErrFulfillmentNotFound
	}
	n := 0
	for i := range f.Messages {
		m := &f.Messages[i]
		if m.Status == model.MessageUnread && m.SentByStaff() == byStaff {
			m.Status = model.MessageRead
			n++
		}
	}
	return n, nil
}

func (r *FulfillmentRepository) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	if r.FailDeleteByCampaign != nil {
		return 0, r.FailDeleteByCampaign
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	kept := r.order[:0]
	for _, id := range r.order {
		if f, ok := r.fulfillments[id]; ok && f.CampaignID == campaignID {
			delete(r.fulfillments, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return n, nil
}

func (r *FulfillmentRepository) CampaignIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	ids := []string{}
	for _, id := range r.order {
		f, ok := r.fulfillments[id]
		if !ok || seen[f.CampaignID] {
			continue
		}
		seen[f.CampaignID] = true
		ids = append(ids, f.CampaignID)
	}
	return ids, nil
}

func (r *FulfillmentRepository) CountByStatus(ctx context.Context, campaignID string) (map[model.FulfillmentStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := map[model.FulfillmentStatus]int{
		model.FulfillmentPending:   0,
		model.FulfillmentCompleted: 0,
		model.FulfillmentFailed:    0,
	}
	for _, f := range r.fulfillments {
		if f.CampaignID == campaignID {
			stats[f.Status]++
		}
	}
	return stats, nil
}

func (r *FulfillmentRepository) mutate(id string, fn func(f *model.Fulfillment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fulfillments[id]
	if !ok {
		return appErrors.ErrFulfillmentNotFound
	}
	fn(f)
	f.UpdatedAt = time.Now().UTC()
	return nil
}

var _ repository.FulfillmentRepositoryInterface = (*FulfillmentRepository)(nil)
