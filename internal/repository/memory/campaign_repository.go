// Package memory holds in-process repositories used by tests and by the
// memory store driver.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

// CampaignRepository keeps campaigns in a map guarded by a mutex. Every
// value handed out is a deep copy.
type CampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	order     []string

	// NaiveAppend makes AppendFulfillmentReference read the campaign, modify
	// the copy and write the whole document back in two separate steps.
	// Concurrent appends then overwrite each other.
	NaiveAppend bool
	// BeforeWrite runs between the read and the write of a naive append.
	BeforeWrite func()
	// FailAppend, when it returns an error, makes the append fail with it.
	FailAppend func(campaignID, resourceID, fulfillmentID string) error
}

func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{campaigns: make(map[string]*model.Campaign)}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
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

	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c.Clone()
	r.order = append(r.order, c.ID)
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.ErrCampaignNotFound
	}
	return c.Clone(), nil
}

// List returns newest first, matching the SQL backend.
func (r *CampaignRepository) List(ctx context.Context, filter model.CampaignFilter, offset, limit int) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(filter.Search)
	matched := []*model.Campaign{}
	for i := len(r.order) - 1; i >= 0; i-- {
		c, ok := r.campaigns[r.order[i]]
		if !ok {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		matched = append(matched, c)
	}

	total := len(matched)
	out := []*model.Campaign{}
	if offset < 0 || offset >= total {
		return out, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, c := range matched[offset:end] {
		out = append(out, c.Clone())
	}
	return out, total, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	return r.mutate(id, func(c *model.Campaign) error {
		c.Status = status
		return nil
	})
}

func (r *CampaignRepository) AddResource(ctx context.Context, campaignID string, res *model.Resource) error {
	if res.Fulfillments == nil {
		res.Fulfillments = []string{}
	}
	return r.mutate(campaignID, func(c *model.Campaign) error {
		c.Resources = append(c.Resources, res.Clone())
		return nil
	})
}

func (r *CampaignRepository) UpdateResource(ctx context.Context, campaignID string, res *model.Resource) error {
	return r.mutate(campaignID, func(c *model.Campaign) error {
		existing := c.Resource(res.ID)
		if existing == nil {
			return appErrors.ErrResourceNotFound
		}
		existing.Name = res.Name
		existing.Type = res.Type
		existing.Quantity = res.Quantity
		return nil
	})
}

func (r *CampaignRepository) AppendFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	if r.FailAppend != nil {
		if err := r.FailAppend(campaignID, resourceID, fulfillmentID); err != nil {
			return err
		}
	}
	if r.NaiveAppend {
		return r.naiveAppend(ctx, campaignID, resourceID, fulfillmentID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.ErrResourceNotFound
	}
	res := c.Resource(resourceID)
	if res == nil {
		return appErrors.ErrResourceNotFound
	}
	if !res.HasFulfillment(fulfillmentID) {
		res.Fulfillments = append(res.Fulfillments, fulfillmentID)
	}
	return nil
}

// naiveAppend is a read-modify-write of the whole campaign without holding
// the lock across both steps.
func (r *CampaignRepository) naiveAppend(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	c, err := r.GetByID(ctx, campaignID)
	if err != nil {
		return appErrors.ErrResourceNotFound
	}
	res := c.Resource(resourceID)
	if res == nil {
		return appErrors.ErrResourceNotFound
	}
	if !res.HasFulfillment(fulfillmentID) {
		res.Fulfillments = append(res.Fulfillments, fulfillmentID)
	}

	if r.BeforeWrite != nil {
		r.BeforeWrite()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[campaignID]; !ok {
		return appErrors.ErrResourceNotFound
	}
	r.campaigns[campaignID] = c
	return nil
}

func (r *CampaignRepository) RemoveFulfillmentReference(ctx context.Context, campaignID, resourceID, fulfillmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.ErrResourceNotFound
	}
	res := c.Resource(resourceID)
	if res == nil {
		return appErrors.ErrResourceNotFound
	}
	kept := res.Fulfillments[:0]
	for _, id := range res.Fulfillments {
		if id != fulfillmentID {
			kept = append(kept, id)
		}
	}
	res.Fulfillments = kept
	return nil
}

func (r *CampaignRepository) AddMedia(ctx context.Context, campaignID, url string) error {
	return r.mutate(campaignID, func(c *model.Campaign) error {
		c.MediaList = append(c.MediaList, url)
		return nil
	})
}

func (r *CampaignRepository) RemoveMedia(ctx context.Context, campaignID, url string) error {
	return r.mutate(campaignID, func(c *model.Campaign) error {
		for i, m := range c.MediaList {
			if m == url {
				c.MediaList = append(c.MediaList[:i], c.MediaList[i+1:]...)
				return nil
			}
		}
		return appErrors.ErrMediaNotFound
	})
}

func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return appErrors.ErrCampaignNotFound
	}
	delete(r.campaigns, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// mutate applies fn to the stored campaign under the lock and bumps
// UpdatedAt when fn succeeds.
func (r *CampaignRepository) mutate(id string, fn func(c *model.Campaign) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.ErrCampaignNotFound
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

var _ repository.CampaignRepositoryInterface = (*CampaignRepository)(nil)
