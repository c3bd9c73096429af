package repository

import (
	"context"
	"time"

	"github.com/voxline/voxline-agents/internal/domain"
)

// Repositories translate storage-level failures into the shared taxonomy:
// missing rows surface as not_found, unique and guard violations as
// conflict, anything else wrapped as internal.

// UserRepository exposes persistence for platform users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, tenantID, userID int64) (domain.User, error)
	List(ctx context.Context, tenantID int64) ([]domain.User, error)
	Delete(ctx context.Context, tenantID, userID int64) error
}

// AgentFilter narrows agent listings.
type AgentFilter struct {
	Status   domain.AgentStatus
	FolderID *int64
}

// AgentRepository owns agent rows. Status transitions are conditional
// updates on (status, version); a transition whose precondition no longer
// holds reports conflict without touching the row.
type AgentRepository interface {
	Create(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	Get(ctx context.Context, tenantID, id int64) (domain.Agent, error)
	List(ctx context.Context, tenantID int64, filter AgentFilter) ([]domain.Agent, error)
	UpdateConfig(ctx context.Context, tenantID, id int64, cfg domain.AgentConfig) (domain.Agent, error)
	Delete(ctx context.Context, tenantID, id int64) error

	TransitionStatus(ctx context.Context, id int64, from []domain.AgentStatus, to domain.AgentStatus) (domain.Agent, error)
	MarkRunning(ctx context.Context, id int64, deploymentRef string) (domain.Agent, error)
	MarkStopped(ctx context.Context, id int64) (domain.Agent, error)
	MarkFailed(ctx context.Context, id int64, lastError string) (domain.Agent, error)
}

// PhoneNumberRepository owns the exclusive number-to-agent binding.
// Assign is a compare-and-swap against the current row: it succeeds only if
// the number is available or already bound to the same agent, and in the
// same transaction frees any other number holding that role for the agent.
type PhoneNumberRepository interface {
	Create(ctx context.Context, number domain.PhoneNumber) (domain.PhoneNumber, error)
	Get(ctx context.Context, tenantID, id int64) (domain.PhoneNumber, error)
	List(ctx context.Context, tenantID int64) ([]domain.PhoneNumber, error)
	ListByAgent(ctx context.Context, agentID int64) ([]domain.PhoneNumber, error)
	Delete(ctx context.Context, tenantID, id int64) error

	Assign(ctx context.Context, tenantID, numberID, agentID int64, role domain.NumberRole, webhookURL string) (domain.PhoneNumber, error)
	Release(ctx context.Context, numberID int64) error
	ReleaseAll(ctx context.Context, agentID int64) error
}

// FolderRepository groups agents for display.
type FolderRepository interface {
	Create(ctx context.Context, folder domain.Folder) (domain.Folder, error)
	List(ctx context.Context, tenantID int64) ([]domain.Folder, error)
	Delete(ctx context.Context, tenantID, id int64) error
}

// KeyRepository stores signing keys per tenant.
type KeyRepository interface {
	GetActiveKey(ctx context.Context, tenantID int64) (domain.SigningKey, error)
	GetKeyByKID(ctx context.Context, kid string) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}

// SessionStore tracks live session IDs so tokens can be revoked before
// their expiry.
type SessionStore interface {
	Add(ctx context.Context, sessionID string, ttl time.Duration) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	Remove(ctx context.Context, sessionID string) error
}
