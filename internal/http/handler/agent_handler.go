package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/http/middleware"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/service"
)

// AgentHandler serves agent CRUD and lifecycle endpoints.
type AgentHandler struct {
	Agents      *service.AgentService
	Deployments *service.DeploymentService
}

// NewAgentHandler creates the handler set.
func NewAgentHandler(agents *service.AgentService, deployments *service.DeploymentService) *AgentHandler {
	return &AgentHandler{Agents: agents, Deployments: deployments}
}

type agentConfigRequest struct {
	Name             string `json:"name"`
	KnowledgeBase    string `json:"knowledge_base"`
	Prompt           string `json:"prompt"`
	Guardrails       string `json:"guardrails"`
	WebhookTarget    string `json:"webhook_target"`
	CallNumberID     string `json:"call_number_id"`
	TransferNumberID string `json:"transfer_number_id"`
	SummaryNumberID  string `json:"summary_number_id"`
	ProviderSID      string `json:"provider_sid"`
	ProviderToken    string `json:"provider_token"`
	VoiceID          string `json:"voice_id"`
	FolderID         string `json:"folder_id"`
}

func (r agentConfigRequest) toConfig() (domain.AgentConfig, error) {
	cfg := domain.AgentConfig{
		Name:          r.Name,
		KnowledgeBase: r.KnowledgeBase,
		Prompt:        r.Prompt,
		Guardrails:    r.Guardrails,
		WebhookTarget: r.WebhookTarget,
		ProviderSID:   r.ProviderSID,
		ProviderToken: r.ProviderToken,
		VoiceID:       r.VoiceID,
	}
	refs := map[string]struct {
		raw    string
		target *int64
	}{
		"call_number_id":     {r.CallNumberID, &cfg.CallNumberID},
		"transfer_number_id": {r.TransferNumberID, &cfg.TransferNumberID},
		"summary_number_id":  {r.SummaryNumberID, &cfg.SummaryNumberID},
	}
	for field, ref := range refs {
		if ref.raw == "" {
			return domain.AgentConfig{}, domain.NewValidation("%s is required", field)
		}
		id, err := parseID(ref.raw)
		if err != nil {
			return domain.AgentConfig{}, domain.NewValidation("%s is not a valid id", field)
		}
		*ref.target = id
	}
	if r.FolderID != "" {
		id, err := parseID(r.FolderID)
		if err != nil {
			return domain.AgentConfig{}, domain.NewValidation("folder_id is not a valid id")
		}
		cfg.FolderID = &id
	}
	return cfg, nil
}

type agentPatchRequest struct {
	Name             *string `json:"name"`
	KnowledgeBase    *string `json:"knowledge_base"`
	Prompt           *string `json:"prompt"`
	Guardrails       *string `json:"guardrails"`
	WebhookTarget    *string `json:"webhook_target"`
	CallNumberID     *string `json:"call_number_id"`
	TransferNumberID *string `json:"transfer_number_id"`
	SummaryNumberID  *string `json:"summary_number_id"`
	ProviderSID      *string `json:"provider_sid"`
	ProviderToken    *string `json:"provider_token"`
	VoiceID          *string `json:"voice_id"`
	FolderID         *string `json:"folder_id"`
}

func (r agentPatchRequest) toPatch() (service.AgentPatch, error) {
	patch := service.AgentPatch{
		Name:          r.Name,
		KnowledgeBase: r.KnowledgeBase,
		Prompt:        r.Prompt,
		Guardrails:    r.Guardrails,
		WebhookTarget: r.WebhookTarget,
		ProviderSID:   r.ProviderSID,
		ProviderToken: r.ProviderToken,
		VoiceID:       r.VoiceID,
	}
	refs := map[string]struct {
		raw    *string
		target **int64
	}{
		"call_number_id":     {r.CallNumberID, &patch.CallNumberID},
		"transfer_number_id": {r.TransferNumberID, &patch.TransferNumberID},
		"summary_number_id":  {r.SummaryNumberID, &patch.SummaryNumberID},
		"folder_id":          {r.FolderID, &patch.FolderID},
	}
	for field, ref := range refs {
		if ref.raw == nil {
			continue
		}
		id, err := parseID(*ref.raw)
		if err != nil {
			return service.AgentPatch{}, domain.NewValidation("%s is not a valid id", field)
		}
		*ref.target = &id
	}
	return patch, nil
}

// Create registers an agent in DRAFT.
func (h *AgentHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	var req agentConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid agent payload"))
		return
	}
	cfg, err := req.toConfig()
	if err != nil {
		respondError(c, err)
		return
	}

	agent, err := h.Agents.Create(c.Request.Context(), principal, cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAgentView(agent))
}

// List returns the tenant's agents, optionally filtered by status or
// folder.
func (h *AgentHandler) List(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}

	filter := repository.AgentFilter{
		Status: domain.AgentStatus(c.Query("status")),
	}
	if raw := c.Query("folder_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.FolderID = &id
	}

	agents, err := h.Agents.List(c.Request.Context(), principal, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": newAgentViews(agents)})
}

// Get returns one agent.
func (h *AgentHandler) Get(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	agentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	agent, err := h.Agents.Get(c.Request.Context(), principal, agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAgentView(agent))
}

// Update patches an editable agent.
func (h *AgentHandler) Update(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	agentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req agentPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidation("invalid agent patch"))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(c, err)
		return
	}

	agent, err := h.Agents.Update(c.Request.Context(), principal, agentID, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAgentView(agent))
}

// Delete removes an editable agent and frees its numbers.
func (h *AgentHandler) Delete(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	agentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.Agents.Delete(c.Request.Context(), principal, agentID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Start deploys the agent through the provisioning backend.
func (h *AgentHandler) Start(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	agentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	agent, err := h.Deployments.Start(c.Request.Context(), principal, agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAgentView(agent))
}

// Stop tears the agent down.
func (h *AgentHandler) Stop(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, domain.NewUnauthorized("Authentication required."))
		return
	}
	agentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	agent, err := h.Deployments.Stop(c.Request.Context(), principal, agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAgentView(agent))
}
