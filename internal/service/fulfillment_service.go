package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/unclebandit/charityng-backend/internal/cache"
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

type FulfillmentService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	FulfillmentRepo repository.FulfillmentRepositoryInterface
	Coordinator     *Coordinator
	Cache           *cache.Cache
	Workflow        Workflow
}

// CreatePledge records a user's pledge against one or more resources of a
// campaign. The fulfillment starts Pending with the user's message as the
// first entry of its thread.
func (s *FulfillmentService) CreatePledge(ctx context.Context, p *model.Principal, campaignID string, in PledgeInput) (*model.Fulfillment, error) {
	if err := Authorize(ActionCreatePledge, p, ""); err != nil {
		return nil, err
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for _, a := range in.Resources {
		if a.ResourceID != "" && campaign.Resource(a.ResourceID) == nil {
			return nil, appErrors.ErrResourceNotFound
		}
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	allocations := make([]model.Allocation, 0, len(in.Resources))
	seen := make(map[string]bool, len(in.Resources))
	for _, a := range in.Resources {
		if seen[a.ResourceID] {
			return nil, fieldError("resources", "each resource may appear only once")
		}
		seen[a.ResourceID] = true
		allocations = append(allocations, model.Allocation{ResourceID: a.ResourceID, Quantity: a.Quantity})
	}

	f := &model.Fulfillment{
		ID:         uuid.NewString(),
		UserID:     p.ID,
		CampaignID: campaignID,
		Resources:  allocations,
		Status:     model.FulfillmentPending,
		Messages:   []model.Message{newMessage(p, in.Message)},
	}
	if err := s.Coordinator.Pledge(ctx, f); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithField("fulfillment_id", f.ID).WithField("campaign_id", campaignID).Info("pledge created")
	return f, nil
}

// CreateSinglePledge is CreatePledge with one allocation.
func (s *FulfillmentService) CreateSinglePledge(ctx context.Context, p *model.Principal, campaignID, resourceID string, quantity int, message string) (*model.Fulfillment, error) {
	return s.CreatePledge(ctx, p, campaignID, PledgeInput{
		Resources: []AllocationInput{{ResourceID: resourceID, Quantity: quantity}},
		Message:   message,
	})
}

// newMessage attributes the message to the principal. Nothing the caller
// sends can change the sender.
func newMessage(p *model.Principal, text string) model.Message {
	m := model.Message{
		ID:     uuid.NewString(),
		Text:   text,
		Status: model.MessageUnread,
	}
	if p.IsStaff() {
		m.StaffID = p.ID
	} else {
		m.UserID = p.ID
	}
	return m
}

func (s *FulfillmentService) SendMessage(ctx context.Context, p *model.Principal, fulfillmentID string, in MessageInput) (*model.Message, error) {
	f, err := s.FulfillmentRepo.GetByID(ctx, fulfillmentID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(ActionMessageFulfillment, p, f.UserID); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	m := newMessage(p, in.Message)
	if err := s.FulfillmentRepo.AppendMessage(ctx, fulfillmentID, &m); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindFulfillments, "")
	return &m, nil
}

// MarkRead marks the other side's messages as read and returns how many
// changed.
func (s *FulfillmentService) MarkRead(ctx context.Context, p *model.Principal, fulfillmentID string) (int, error) {
	f, err := s.FulfillmentRepo.GetByID(ctx, fulfillmentID)
	if err != nil {
		return 0, err
	}
	if err := Authorize(ActionMessageFulfillment, p, f.UserID); err != nil {
		return 0, err
	}

	n, err := s.FulfillmentRepo.MarkMessagesRead(ctx, fulfillmentID, !p.IsStaff())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Cache.Invalidate(cache.KindFulfillments, "")
	}
	return n, nil
}

// UpdateStatus changes the fulfillment status. Re-applying the current
// status returns the fulfillment unchanged without writing.
func (s *FulfillmentService) UpdateStatus(ctx context.Context, p *model.Principal, fulfillmentID string, status int) (*model.Fulfillment, error) {
	if err := Authorize(ActionUpdateFulfillmentStatus, p, ""); err != nil {
		return nil, err
	}
	to := model.FulfillmentStatus(status)
	if !to.Valid() {
		return nil, fieldError("status", "unknown fulfillment status")
	}

	f, err := s.FulfillmentRepo.GetByID(ctx, fulfillmentID)
	if err != nil {
		return nil, err
	}
	if f.Status == to {
		return f, nil
	}
	if err := s.Workflow.CheckFulfillment(f.Status, to); err != nil {
		return nil, err
	}

	if err := s.FulfillmentRepo.UpdateStatus(ctx, fulfillmentID, to); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cache.KindFulfillments, "")

	logger.FromContext(ctx).WithField("fulfillment_id", fulfillmentID).
		WithField("from", f.Status.String()).WithField("to", to.String()).
		Info("fulfillment status updated")
	f.Status = to
	return f, nil
}

func (s *FulfillmentService) Get(ctx context.Context, p *model.Principal, id string) (*model.Fulfillment, error) {
	f, err := cache.Remember(s.Cache, cache.KindFulfillments, cache.Key("id", id), func() (*model.Fulfillment, error) {
		return s.FulfillmentRepo.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if err := Authorize(ActionViewFulfillment, p, f.UserID); err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

// ListByUser returns the principal's own pledges.
func (s *FulfillmentService) ListByUser(ctx context.Context, p *model.Principal) ([]*model.Fulfillment, error) {
	if err := Authorize(ActionCreatePledge, p, ""); err != nil {
		return nil, err
	}
	return s.list(ctx, model.FulfillmentFilter{UserID: p.ID})
}

// ListOwnByCampaign returns the principal's pledges on one campaign.
func (s *FulfillmentService) ListOwnByCampaign(ctx context.Context, p *model.Principal, campaignID string) ([]*model.Fulfillment, error) {
	if err := Authorize(ActionCreatePledge, p, ""); err != nil {
		return nil, err
	}
	return s.list(ctx, model.FulfillmentFilter{UserID: p.ID, CampaignID: campaignID})
}

// ListByResource is the staff view of every pledge on one resource.
func (s *FulfillmentService) ListByResource(ctx context.Context, p *model.Principal, campaignID, resourceID string) ([]*model.Fulfillment, error) {
	if err := Authorize(ActionListResourcePledges, p, ""); err != nil {
		return nil, err
	}
	return s.list(ctx, model.FulfillmentFilter{CampaignID: campaignID, ResourceID: resourceID})
}

func (s *FulfillmentService) list(ctx context.Context, filter model.FulfillmentFilter) ([]*model.Fulfillment, error) {
	key := cache.Key("list", filter.UserID, filter.CampaignID, filter.ResourceID)
	cached, err := cache.Remember(s.Cache, cache.KindFulfillments, key, func() ([]*model.Fulfillment, error) {
		return s.FulfillmentRepo.List(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Fulfillment, len(cached))
	for i, f := range cached {
		out[i] = f.Clone()
	}
	return out, nil
}
