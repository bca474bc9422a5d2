package roles

import "time"

// ProtectedRoleName is the system role that can never be deleted.
const ProtectedRoleName = "admin"

// Role groups identity-provider users under a named access level. Roles may
// form a tree via ParentID.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Level       int       `json:"level"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
