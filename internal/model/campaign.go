// internal/model/campaign.go
package model

import "time"

// CampaignStatus codes are stored numerically and must stay stable.
type CampaignStatus int

const (
	CampaignDraft CampaignStatus = iota
	CampaignActive
	CampaignPaused
	CampaignCompleted
	CampaignFailed
)

func (s CampaignStatus) Valid() bool {
	return s >= CampaignDraft && s <= CampaignFailed
}

func (s CampaignStatus) String() string {
	switch s {
	case CampaignDraft:
		return "draft"
	case CampaignActive:
		return "active"
	case CampaignPaused:
		return "paused"
	case CampaignCompleted:
		return "completed"
	case CampaignFailed:
		return "failed"
	}
	return "unknown"
}

type ResourceType int

const (
	ResourceMaterial ResourceType = iota
	ResourceHuman
)

func (t ResourceType) Valid() bool {
	return t == ResourceMaterial || t == ResourceHuman
}

// Resource is a need embedded in a campaign. Fulfillments holds the ids of
// the pledges targeting it and is maintained by the coordinator only.
type Resource struct {
	ID           string       `db:"id" json:"id" bson:"_id"`
	Name         string       `db:"name" json:"name" bson:"name"`
	Type         ResourceType `db:"type" json:"type" bson:"type"`
	Quantity     int          `db:"quantity" json:"quantity" bson:"quantity"`
	Fulfillments []string     `db:"-" json:"fulfillments" bson:"fulfillments"`
}

// HasFulfillment reports whether id is referenced by the resource.
func (r *Resource) HasFulfillment(id string) bool {
	for _, f := range r.Fulfillments {
		if f == id {
			return true
		}
	}
	return false
}

type Campaign struct {
	ID          string         `db:"id" json:"id" bson:"_id"`
	Title       string         `db:"title" json:"title" bson:"title"`
	Description string         `db:"description" json:"description" bson:"description"`
	Status      CampaignStatus `db:"status" json:"status" bson:"status"`
	MediaList   []string       `db:"-" json:"media_list" bson:"media_list"`
	Resources   []Resource     `db:"-" json:"resources" bson:"resources"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at" bson:"updated_at"`
}

// Resource returns the embedded resource with the given id, or nil.
func (c *Campaign) Resource(id string) *Resource {
	for i := range c.Resources {
		if c.Resources[i].ID == id {
			return &c.Resources[i]
		}
	}
	return nil
}

// Clone returns a deep copy. Cached campaigns are shared, so callers get
// clones.
func (c *Campaign) Clone() *Campaign {
	out := *c
	out.MediaList = append([]string{}, c.MediaList...)
	out.Resources = make([]Resource, len(c.Resources))
	for i, res := range c.Resources {
		out.Resources[i] = res.Clone()
	}
	return &out
}

func (r Resource) Clone() Resource {
	r.Fulfillments = append([]string{}, r.Fulfillments...)
	return r
}

// CampaignFilter narrows a campaign listing. A nil Status matches all.
type CampaignFilter struct {
	Search string
	Status *CampaignStatus
}
