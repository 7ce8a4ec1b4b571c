// internal/model/principal.go
package model

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
)

// Principal is the authenticated actor of a request.
type Principal struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p *Principal) IsStaff() bool {
	return p != nil && p.Role == RoleStaff
}

// APIKey is a long-lived credential bound to a device.
type APIKey struct {
	Token     string    `db:"token" json:"token" bson:"token"`
	DeviceID  string    `db:"device_id" json:"device_id" bson:"device_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at" bson:"created_at"`
}

// Account is a user or staff login. Which one is decided by the lookup
// space it is stored in.
type Account struct {
	ID              string    `db:"id" json:"id" bson:"_id"`
	Email           string    `db:"email" json:"email" bson:"email"`
	FirstName       string    `db:"first_name" json:"first_name" bson:"first_name"`
	LastName        string    `db:"last_name" json:"last_name" bson:"last_name"`
	PasswordHash    string    `db:"password_hash" json:"-" bson:"password_hash"`
	Bio             string    `db:"bio" json:"bio,omitempty" bson:"bio,omitempty"`
	ProfileImageURL string    `db:"profile_image_url" json:"profile_image_url,omitempty" bson:"profile_image_url,omitempty"`
	APIKeys         []APIKey  `db:"-" json:"-" bson:"api_keys"`
	CreatedAt       time.Time `db:"created_at" json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at" bson:"updated_at"`
}

// Principal projects the account into the given role.
func (a *Account) Principal(role Role) *Principal {
	return &Principal{
		ID:        a.ID,
		Role:      role,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

// PasswordResetToken is issued by the forgotten-password flow.
type PasswordResetToken struct {
	Token     string    `db:"token" json:"-" bson:"_id"`
	AccountID string    `db:"account_id" json:"-" bson:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"-" bson:"created_at"`
}
