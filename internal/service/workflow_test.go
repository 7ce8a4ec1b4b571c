package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/service"
)

func TestWorkflow_Campaign(t *testing.T) {
	tests := []struct {
		from, to        model.CampaignStatus
		lenient, strict bool
	}{
		{model.CampaignDraft, model.CampaignActive, true, true},
		{model.CampaignDraft, model.CampaignCompleted, true, false},
		{model.CampaignActive, model.CampaignPaused, true, true},
		{model.CampaignActive, model.CampaignFailed, true, true},
		{model.CampaignPaused, model.CampaignActive, true, true},
		{model.CampaignPaused, model.CampaignCompleted, true, false},
		{model.CampaignCompleted, model.CampaignActive, true, false},
		{model.CampaignFailed, model.CampaignDraft, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			check := func(w service.Workflow, ok bool) {
				err := w.CheckCampaign(tt.from, tt.to)
				if ok {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, appErrors.ErrIllegalTransition)
				}
			}
			check(service.Workflow{}, tt.lenient)
			check(service.Workflow{Strict: true}, tt.strict)
		})
	}
}

func TestWorkflow_Fulfillment(t *testing.T) {
	strict := service.Workflow{Strict: true}
	assert.NoError(t, strict.CheckFulfillment(model.FulfillmentPending, model.FulfillmentCompleted))
	assert.NoError(t, strict.CheckFulfillment(model.FulfillmentPending, model.FulfillmentFailed))
	assert.ErrorIs(t, strict.CheckFulfillment(model.FulfillmentCompleted, model.FulfillmentFailed), appErrors.ErrIllegalTransition)
	assert.ErrorIs(t, strict.CheckFulfillment(model.FulfillmentFailed, model.FulfillmentPending), appErrors.ErrIllegalTransition)

	lenient := service.Workflow{}
	assert.NoError(t, lenient.CheckFulfillment(model.FulfillmentCompleted, model.FulfillmentFailed))
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(lenient.CheckFulfillment(model.FulfillmentPending, 3)))
	assert.Equal(t, appErrors.KindValidation, appErrors.KindOf(strict.CheckFulfillment(model.FulfillmentPending, -1)))
}
