package service

import (
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

var campaignEdges = map[model.CampaignStatus][]model.CampaignStatus{
	model.CampaignDraft:  {model.CampaignActive},
	model.CampaignActive: {model.CampaignPaused, model.CampaignCompleted, model.CampaignFailed},
	model.CampaignPaused: {model.CampaignActive},
}

var fulfillmentEdges = map[model.FulfillmentStatus][]model.FulfillmentStatus{
	model.FulfillmentPending: {model.FulfillmentCompleted, model.FulfillmentFailed},
}

// Workflow checks status changes. Lenient accepts any in-range target,
// Strict only the lifecycle edges. Callers handle same-status requests
// before asking.
type Workflow struct {
	Strict bool
}

func (w Workflow) CheckCampaign(from, to model.CampaignStatus) error {
	if !to.Valid() {
		return fieldError("status", "unknown campaign status")
	}
	if !w.Strict || contains(campaignEdges[from], to) {
		return nil
	}
	return appErrors.NewIllegalTransition("campaign", from, to)
}

func (w Workflow) CheckFulfillment(from, to model.FulfillmentStatus) error {
	if !to.Valid() {
		return fieldError("status", "unknown fulfillment status")
	}
	if !w.Strict || contains(fulfillmentEdges[from], to) {
		return nil
	}
	return appErrors.NewIllegalTransition("fulfillment", from, to)
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
