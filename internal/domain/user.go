package domain

import "time"

// Role classifies what a user may do inside their tenant.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleDeveloper Role = "DEVELOPER"
)

// Valid reports whether the role is one the platform knows.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDeveloper
}

// User represents an end user that can authenticate within a tenant.
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Principal is the authenticated identity derived from a verified token.
// It is never persisted.
type Principal struct {
	UserID   int64
	TenantID int64
	Role     Role
}

// IsAdmin reports whether the principal may perform admin-only operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
