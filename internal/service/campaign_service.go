// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"

	"github.com/google/uuid"

	"github.com/unclebandit/charityng-backend/internal/cache"
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
	"github.com/unclebandit/charityng-backend/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type CampaignService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	FulfillmentRepo repository.FulfillmentRepositoryInterface
	Storage         storage.ObjectStore
	Cache           *cache.Cache
	Workflow        Workflow
}

// ListCampaignsParams filters a campaign listing. Page is zero based.
type ListCampaignsParams struct {
	Search   string
	Status   *int
	Page     int
	PageSize int
}

type CampaignPage struct {
	Campaigns  []*model.Campaign `json:"campaigns"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalCount int               `json:"total_count"`
	TotalPages int               `json:"total_pages"`
}

// CampaignStats is the staff view of a campaign.
type CampaignStats struct {
	*model.Campaign
	Stats   map[string]int `json:"stats"`
	Pledged map[string]int `json:"pledged"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, p *model.Principal, in CampaignInput) (*model.Campaign, error) {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Status:      model.CampaignDraft,
		MediaList:   []string{},
		Resources:   make([]model.Resource, len(in.Resources)),
	}
	for i, r := range in.Resources {
		c.Resources[i] = newResource(r)
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")

	logger.FromContext(ctx).WithField("campaign_id", c.ID).Info("campaign created")
	return c, nil
}

func newResource(in ResourceInput) model.Resource {
	return model.Resource{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Type:         model.ResourceType(in.Type),
		Quantity:     in.Quantity,
		Fulfillments: []string{},
	}
}

// GetCampaign fetches a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := cache.Remember(s.Cache, cache.KindCampaigns, cache.Key("id", id), func() (*model.Campaign, error) {
		return s.CampaignRepo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, params ListCampaignsParams) (*CampaignPage, error) {
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter := model.CampaignFilter{Search: params.Search}
	if params.Status != nil {
		status := model.CampaignStatus(*params.Status)
		if !status.Valid() {
			return nil, fieldError("status", "unknown campaign status")
		}
		filter.Status = &status
	}

	// Pages before the first or past the largest representable offset are
	// answered with an empty page carrying the first page's counts.
	outOfRange := params.Page < 0 || params.Page > (math.MaxInt-1)/pageSize
	offset := 0
	if !outOfRange {
		offset = params.Page * pageSize
	}

	key := cache.Key("list", params.Search, statusKey(filter.Status), fmt.Sprint(offset), fmt.Sprint(pageSize))
	page, err := cache.Remember(s.Cache, cache.KindCampaigns, key, func() (*CampaignPage, error) {
		campaigns, total, err := s.CampaignRepo.List(ctx, filter, offset, pageSize)
		if err != nil {
			return nil, err
		}
		return &CampaignPage{
			Campaigns:  campaigns,
			PageSize:   pageSize,
			TotalCount: total,
			TotalPages: (total + pageSize - 1) / pageSize,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	out := *page
	out.Page = params.Page
	out.Campaigns = make([]*model.Campaign, 0, len(page.Campaigns))
	if !outOfRange {
		for _, c := range page.Campaigns {
			out.Campaigns = append(out.Campaigns, c.Clone())
		}
	}
	return &out, nil
}

func statusKey(s *model.CampaignStatus) string {
	if s == nil {
		return ""
	}
	return fmt.Sprint(int(*s))
}

// UpdateCampaignStatus applies a status change. Re-applying the current
// status returns the campaign unchanged without writing.
func (s *CampaignService) UpdateCampaignStatus(ctx context.Context, p *model.Principal, id string, status int) (*model.Campaign, error) {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return nil, err
	}
	to := model.CampaignStatus(status)
	if !to.Valid() {
		return nil, fieldError("status", "unknown campaign status")
	}

	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}
	if err := s.Workflow.CheckCampaign(c.Status, to); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")

	logger.FromContext(ctx).WithField("campaign_id", id).
		WithField("from", c.Status.String()).WithField("to", to.String()).
		Info("campaign status updated")
	c.Status = to
	return c, nil
}

func (s *CampaignService) AddResource(ctx context.Context, p *model.Principal, campaignID string, in ResourceInput) (*model.Resource, error) {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	res := newResource(in)
	if err := s.CampaignRepo.AddResource(ctx, campaignID, &res); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")
	return &res, nil
}

// UpdateResource rewrites name, type and quantity. References are kept.
func (s *CampaignService) UpdateResource(ctx context.Context, p *model.Principal, campaignID, resourceID string, in ResourceInput) (*model.Resource, error) {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	patch := &model.Resource{
		ID:       resourceID,
		Name:     in.Name,
		Type:     model.ResourceType(in.Type),
		Quantity: in.Quantity,
	}
	if err := s.CampaignRepo.UpdateResource(ctx, campaignID, patch); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")

	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if res := c.Resource(resourceID); res != nil {
		return res, nil
	}
	return nil, appErrors.ErrResourceNotFound
}

// AddMedia uploads body and appends its URL to the campaign. Nothing is
// appended when the upload fails.
func (s *CampaignService) AddMedia(ctx context.Context, p *model.Principal, campaignID, filename, contentType string, body []byte) (string, error) {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return "", err
	}
	if filename == "" || len(body) == 0 {
		return "", fieldError("file", "is required")
	}
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return "", err
	}

	key := path.Join("campaigns", campaignID, "media", uuid.NewString(), path.Base(filename))
	url, err := s.Storage.Put(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	if err := s.CampaignRepo.AddMedia(ctx, campaignID, url); err != nil {
		if delErr := s.Storage.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).WithField("path", key).Warn("failed to remove orphaned upload")
		}
		return "", err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")
	return url, nil
}

func (s *CampaignService) RemoveMedia(ctx context.Context, p *model.Principal, campaignID, url string) error {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return err
	}
	if url == "" {
		return fieldError("url", "is required")
	}
	if err := s.CampaignRepo.RemoveMedia(ctx, campaignID, url); err != nil {
		return err
	}
	s.Cache.Invalidate(cache.KindCampaigns, "")

	if key, ok := s.Storage.PathOf(url); ok {
		if err := s.Storage.Delete(ctx, key); err != nil {
			logger.FromContext(ctx).WithError(err).WithField("path", key).Warn("failed to delete media object")
		}
	}
	return nil
}

// RemoveCampaign deletes the campaign and its fulfillments. Backends that
// cannot do both in one transaction delete fulfillments first; if that fails
// the campaign stays and the call can be repeated. Removing a campaign that
// is already gone still deletes fulfillments left pointing at it, and only
// reports not found when there were none.
func (s *CampaignService) RemoveCampaign(ctx context.Context, p *model.Principal, id string) error {
	if err := Authorize(ActionManageCampaign, p, ""); err != nil {
		return err
	}
	log := logger.FromContext(ctx).WithField("campaign_id", id)

	if cascader, ok := s.CampaignRepo.(repository.CascadeDeleter); ok {
		if err := cascader.DeleteCascade(ctx, id); err != nil {
			return err
		}
	} else {
		_, err := s.CampaignRepo.GetByID(ctx, id)
		exists := err == nil
		if err != nil && !errors.Is(err, appErrors.ErrCampaignNotFound) {
			return err
		}

		n, err := s.FulfillmentRepo.DeleteByCampaign(ctx, id)
		if err != nil {
			log.WithError(err).Error("fulfillment cascade failed")
			return appErrors.NewCascadeIncomplete(id, err)
		}
		log.WithField("fulfillments", n).Debug("fulfillments removed")
		if !exists && n == 0 {
			return appErrors.ErrCampaignNotFound
		}
		if exists {
			if err := s.CampaignRepo.Delete(ctx, id); err != nil && !errors.Is(err, appErrors.ErrCampaignNotFound) {
				return err
			}
		}
	}

	s.Cache.Invalidate(cache.KindCampaigns, "")
	s.Cache.Invalidate(cache.KindFulfillments, "")
	log.Info("campaign removed")
	return nil
}

// GetCampaignStats returns the campaign with fulfillment counts by status
// and the quantity pledged per resource.
func (s *CampaignService) GetCampaignStats(ctx context.Context, p *model.Principal, id string) (*CampaignStats, error) {
	if err := Authorize(ActionViewCampaignStats, p, ""); err != nil {
		return nil, err
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.FulfillmentRepo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{"total": 0}
	for status, n := range counts {
		stats[status.String()] = n
		stats["total"] += n
	}

	fulfillments, err := s.FulfillmentRepo.List(ctx, model.FulfillmentFilter{CampaignID: id})
	if err != nil {
		return nil, err
	}
	pledged := make(map[string]int, len(campaign.Resources))
	for _, res := range campaign.Resources {
		pledged[res.ID] = 0
	}
	for _, f := range fulfillments {
		for _, a := range f.Resources {
			pledged[a.ResourceID] += a.Quantity
		}
	}

	return &CampaignStats{Campaign: campaign, Stats: stats, Pledged: pledged}, nil
}
