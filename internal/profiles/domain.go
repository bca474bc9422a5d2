package profiles

import "time"

// Profile types. System profiles ship with the product and cannot be
// deleted through the admin API.
const (
	TypeSystem   = "System"
	TypeStandard = "Standard"
)

// Profile is a named bundle of permission sets assignable to exactly one
// user at a time.
type Profile struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserAssignment links an identity-provider subject to its single profile.
type UserAssignment struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	ProfileID int64  `json:"profile_id"`
}
