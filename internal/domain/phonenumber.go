package domain

import "time"

// NumberRole is the function a phone number serves for the agent it is
// bound to.
type NumberRole string

const (
	NumberRoleCall     NumberRole = "call"
	NumberRoleTransfer NumberRole = "transfer"
	NumberRoleSummary  NumberRole = "summary"
)

// Valid reports whether the binding role is known.
func (r NumberRole) Valid() bool {
	switch r {
	case NumberRoleCall, NumberRoleTransfer, NumberRoleSummary:
		return true
	}
	return false
}

// PhoneNumber is an inventory row with an exclusive agent binding.
// Invariant: IsAvailable == false exactly when AgentID != nil, after every
// operation, including failed deployments.
type PhoneNumber struct {
	ID           int64
	TenantID     int64
	Number       string
	Description  string
	IsAvailable  bool
	AgentID      *int64
	AssignedRole *NumberRole
	WebhookURL   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BoundTo reports whether the number is currently bound to the given agent.
func (n PhoneNumber) BoundTo(agentID int64) bool {
	return n.AgentID != nil && *n.AgentID == agentID
}
