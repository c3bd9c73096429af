package handler

import (
	"time"

	"github.com/voxline/voxline-agents/internal/domain"
)

type userView struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(user domain.User) userView {
	return userView{
		ID:        formatID(user.ID),
		TenantID:  formatID(user.TenantID),
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}

type agentView struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Name             string    `json:"name"`
	KnowledgeBase    string    `json:"knowledge_base"`
	Prompt           string    `json:"prompt"`
	Guardrails       string    `json:"guardrails"`
	WebhookTarget    string    `json:"webhook_target"`
	CallNumberID     string    `json:"call_number_id"`
	TransferNumberID string    `json:"transfer_number_id"`
	SummaryNumberID  string    `json:"summary_number_id"`
	ProviderSID      string    `json:"provider_sid"`
	VoiceID          string    `json:"voice_id"`
	FolderID         *string   `json:"folder_id,omitempty"`
	Status           string    `json:"status"`
	DeploymentRef    string    `json:"deployment_ref,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// newAgentView omits the provider auth token: it is write-only through
// the API.
func newAgentView(agent domain.Agent) agentView {
	view := agentView{
		ID:               formatID(agent.ID),
		TenantID:         formatID(agent.TenantID),
		Name:             agent.Config.Name,
		KnowledgeBase:    agent.Config.KnowledgeBase,
		Prompt:           agent.Config.Prompt,
		Guardrails:       agent.Config.Guardrails,
		WebhookTarget:    agent.Config.WebhookTarget,
		CallNumberID:     formatID(agent.Config.CallNumberID),
		TransferNumberID: formatID(agent.Config.TransferNumberID),
		SummaryNumberID:  formatID(agent.Config.SummaryNumberID),
		ProviderSID:      agent.Config.ProviderSID,
		VoiceID:          agent.Config.VoiceID,
		Status:           string(agent.Status),
		DeploymentRef:    agent.DeploymentRef,
		LastError:        agent.LastError,
		CreatedAt:        agent.CreatedAt,
		UpdatedAt:        agent.UpdatedAt,
	}
	if agent.Config.FolderID != nil {
		id := formatID(*agent.Config.FolderID)
		view.FolderID = &id
	}
	return view
}

func newAgentViews(agents []domain.Agent) []agentView {
	views := make([]agentView, 0, len(agents))
	for _, agent := range agents {
		views = append(views, newAgentView(agent))
	}
	return views
}

type numberView struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Number       string    `json:"number"`
	Description  string    `json:"description,omitempty"`
	IsAvailable  bool      `json:"is_available"`
	AgentID      *string   `json:"agent_id,omitempty"`
	AssignedRole *string   `json:"assigned_role,omitempty"`
	WebhookURL   *string   `json:"webhook_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newNumberView(number domain.PhoneNumber) numberView {
	view := numberView{
		ID:          formatID(number.ID),
		TenantID:    formatID(number.TenantID),
		Number:      number.Number,
		Description: number.Description,
		IsAvailable: number.IsAvailable,
		WebhookURL:  number.WebhookURL,
		CreatedAt:   number.CreatedAt,
		UpdatedAt:   number.UpdatedAt,
	}
	if number.AgentID != nil {
		id := formatID(*number.AgentID)
		view.AgentID = &id
	}
	if number.AssignedRole != nil {
		role := string(*number.AssignedRole)
		view.AssignedRole = &role
	}
	return view
}

func newNumberViews(numbers []domain.PhoneNumber) []numberView {
	views := make([]numberView, 0, len(numbers))
	for _, number := range numbers {
		views = append(views, newNumberView(number))
	}
	return views
}

type folderView struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func newFolderView(folder domain.Folder) folderView {
	return folderView{
		ID:        formatID(folder.ID),
		TenantID:  formatID(folder.TenantID),
		Name:      folder.Name,
		CreatedAt: folder.CreatedAt,
	}
}
