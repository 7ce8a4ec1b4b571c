package service

import (
	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// Action names a mutating or restricted operation checked by Authorize.
type Action string

const (
	ActionManageCampaign          Action = "campaign.manage"
	ActionViewCampaignStats       Action = "campaign.stats"
	ActionCreatePledge            Action = "fulfillment.create"
	ActionViewFulfillment         Action = "fulfillment.view"
	ActionMessageFulfillment      Action = "fulfillment.message"
	ActionUpdateFulfillmentStatus Action = "fulfillment.status"
	ActionListResourcePledges     Action = "fulfillment.list_by_resource"
	ActionManageStaff             Action = "staff.manage"
	ActionManageProfile           Action = "user.profile"
)

type rule int

const (
	staffOnly rule = iota
	userOnly
	ownerOrStaff
)

var policy = map[Action]rule{
	ActionManageCampaign:          staffOnly,
	ActionViewCampaignStats:       staffOnly,
	ActionCreatePledge:            userOnly,
	ActionViewFulfillment:         ownerOrStaff,
	ActionMessageFulfillment:      ownerOrStaff,
	ActionUpdateFulfillmentStatus: staffOnly,
	ActionListResourcePledges:     staffOnly,
	ActionManageStaff:             staffOnly,
	ActionManageProfile:           userOnly,
}

// Authorize decides whether principal may perform action on an entity owned
// by ownerID. ownerID is ignored by rules that do not look at ownership.
func Authorize(action Action, principal *model.Principal, ownerID string) error {
	if principal == nil {
		return appErrors.NewUnauthenticated("authentication required")
	}

	r, ok := policy[action]
	if !ok {
		return appErrors.NewForbidden("unknown action " + string(action))
	}

	switch r {
	case staffOnly:
		if principal.IsStaff() {
			return nil
		}
	case userOnly:
		if principal.Role == model.RoleUser {
			return nil
		}
	case ownerOrStaff:
		if principal.IsStaff() || (principal.Role == model.RoleUser && principal.ID == ownerID) {
			return nil
		}
	}
	return appErrors.NewForbidden("not allowed to " + string(action))
}
