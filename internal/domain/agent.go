package domain

import "time"

// AgentStatus is the deployment lifecycle state of an agent.
type AgentStatus string

const (
	AgentDraft     AgentStatus = "DRAFT"
	AgentDeploying AgentStatus = "DEPLOYING"
	AgentRunning   AgentStatus = "RUNNING"
	AgentStopping  AgentStatus = "STOPPING"
	AgentStopped   AgentStatus = "STOPPED"
	AgentFailed    AgentStatus = "FAILED"
)

// Editable reports whether the agent may be updated or deleted in this
// state. Live agents (DEPLOYING, RUNNING, STOPPING) are frozen.
func (s AgentStatus) Editable() bool {
	switch s {
	case AgentDraft, AgentStopped, AgentFailed:
		return true
	}
	return false
}

// Startable reports whether a start may begin from this state.
func (s AgentStatus) Startable() bool {
	switch s {
	case AgentDraft, AgentStopped, AgentFailed:
		return true
	}
	return false
}

// AgentConfig is the full configuration bundle handed to the provisioning
// backend on deploy. All fields except FolderID are required at creation.
type AgentConfig struct {
	Name             string `json:"name"`
	KnowledgeBase    string `json:"knowledge_base"`
	Prompt           string `json:"prompt"`
	Guardrails       string `json:"guardrails"`
	WebhookTarget    string `json:"webhook_target"`
	CallNumberID     int64  `json:"call_number_id"`
	TransferNumberID int64  `json:"transfer_number_id"`
	SummaryNumberID  int64  `json:"summary_number_id"`
	ProviderSID      string `json:"provider_sid"`
	ProviderToken    string `json:"provider_token"`
	VoiceID          string `json:"voice_id"`
	FolderID         *int64 `json:"folder_id,omitempty"`
}

// Agent is a configured voice automation unit with a deployable lifecycle.
// Status is mutated only by the deployment orchestrator; Version guards
// concurrent status transitions.
type Agent struct {
	ID            int64
	TenantID      int64
	Config        AgentConfig
	Status        AgentStatus
	Version       int64
	DeploymentRef string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NumberRefs returns the configured phone number references by binding role.
func (a Agent) NumberRefs() map[NumberRole]int64 {
	return map[NumberRole]int64{
		NumberRoleCall:     a.Config.CallNumberID,
		NumberRoleTransfer: a.Config.TransferNumberID,
		NumberRoleSummary:  a.Config.SummaryNumberID,
	}
}

// Folder groups agents for display purposes. It carries no lifecycle
// semantics of its own.
type Folder struct {
	ID        int64
	TenantID  int64
	Name      string
	CreatedAt time.Time
}
