// internal/model/fulfillment.go
package model

import "time"

type FulfillmentStatus int

const (
	FulfillmentPending FulfillmentStatus = iota
	FulfillmentCompleted
	FulfillmentFailed
)

func (s FulfillmentStatus) Valid() bool {
	return s >= FulfillmentPending && s <= FulfillmentFailed
}

func (s FulfillmentStatus) String() string {
	switch s {
	case FulfillmentPending:
		return "pending"
	case FulfillmentCompleted:
		return "completed"
	case FulfillmentFailed:
		return "failed"
	}
	return "unknown"
}

type MessageStatus int

const (
	MessageUnread MessageStatus = iota
	MessageRead
)

// Message is one entry of a fulfillment thread. Exactly one of UserID and
// StaffID is set.
type Message struct {
	ID        string        `db:"id" json:"id" bson:"_id"`
	Text      string        `db:"message" json:"message" bson:"message"`
	UserID    string        `db:"user_id" json:"user_id,omitempty" bson:"user_id,omitempty"`
	StaffID   string        `db:"staff_id" json:"staff_id,omitempty" bson:"staff_id,omitempty"`
	Status    MessageStatus `db:"status" json:"status" bson:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at" bson:"created_at"`
}

func (m *Message) SentByStaff() bool {
	return m.StaffID != ""
}

// Allocation is the quantity pledged against one resource.
type Allocation struct {
	ResourceID string `db:"resource_id" json:"resource_id" bson:"resource_id"`
	Quantity   int    `db:"quantity" json:"quantity" bson:"quantity"`
}

type Fulfillment struct {
	ID         string            `db:"id" json:"id" bson:"_id"`
	UserID     string            `db:"user_id" json:"user_id" bson:"user_id"`
	CampaignID string            `db:"campaign_id" json:"campaign_id" bson:"campaign_id"`
	Resources  []Allocation      `db:"-" json:"resources" bson:"resources"`
	Status     FulfillmentStatus `db:"status" json:"status" bson:"status"`
	Messages   []Message         `db:"-" json:"messages" bson:"messages"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at" bson:"updated_at"`
}

// Targets reports whether the fulfillment pledges against resourceID.
func (f *Fulfillment) Targets(resourceID string) bool {
	for _, a := range f.Resources {
		if a.ResourceID == resourceID {
			return true
		}
	}
	return false
}

// Quantity is the total pledged quantity across all allocations.
func (f *Fulfillment) Quantity() int {
	total := 0
	for _, a := range f.Resources {
		total += a.Quantity
	}
	return total
}

func (f *Fulfillment) Clone() *Fulfillment {
	out := *f
	out.Resources = append([]Allocation{}, f.Resources...)
	out.Messages = append([]Message{}, f.Messages...)
	return &out
}

// FulfillmentFilter selects fulfillments. Empty fields match everything.
type FulfillmentFilter struct {
	UserID     string
	CampaignID string
	ResourceID string
}
