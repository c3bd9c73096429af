package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/tenant"
)

// AgentPatch carries a partial configuration update. Nil fields keep their
// current value.
type AgentPatch struct {
	Name             *string
	KnowledgeBase    *string
	Prompt           *string
	Guardrails       *string
	WebhookTarget    *string
	CallNumberID     *int64
	TransferNumberID *int64
	SummaryNumberID  *int64
	ProviderSID      *string
	ProviderToken    *string
	VoiceID          *string
	FolderID         *int64
}

func (p AgentPatch) apply(cfg domain.AgentConfig) domain.AgentConfig {
	if p.Name != nil {
		cfg.Name = *p.Name
	}
	if p.KnowledgeBase != nil {
		cfg.KnowledgeBase = *p.KnowledgeBase
	}
	if p.Prompt != nil {
		cfg.Prompt = *p.Prompt
	}
	if p.Guardrails != nil {
		cfg.Guardrails = *p.Guardrails
	}
	if p.WebhookTarget != nil {
		cfg.WebhookTarget = *p.WebhookTarget
	}
	if p.CallNumberID != nil {
		cfg.CallNumberID = *p.CallNumberID
	}
	if p.TransferNumberID != nil {
		cfg.TransferNumberID = *p.TransferNumberID
	}
	if p.SummaryNumberID != nil {
		cfg.SummaryNumberID = *p.SummaryNumberID
	}
	if p.ProviderSID != nil {
		cfg.ProviderSID = *p.ProviderSID
	}
	if p.ProviderToken != nil {
		cfg.ProviderToken = *p.ProviderToken
	}
	if p.VoiceID != nil {
		cfg.VoiceID = *p.VoiceID
	}
	if p.FolderID != nil {
		cfg.FolderID = p.FolderID
	}
	return cfg
}

// AgentService owns agent entities and their lifecycle guards. Status is
// never mutated here; only the deployment orchestrator moves it.
type AgentService struct {
	agents    repository.AgentRepository
	numbers   *PhoneNumberService
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAgentService wires dependencies.
func NewAgentService(agents repository.AgentRepository, numbers *PhoneNumberService, node *snowflake.Node, logger *zap.Logger) *AgentService {
	return &AgentService{
		agents:    agents,
		numbers:   numbers,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/voxline/voxline-agents/internal/service"),
	}
}

// Create validates the configuration bundle and registers the agent in
// DRAFT.
func (s *AgentService) Create(ctx context.Context, p domain.Principal, cfg domain.AgentConfig) (domain.Agent, error) {
	ctx, span := startSpan(ctx, s.tracer, "AgentService.Create")
	defer span.End()

	if err := s.validateConfig(ctx, p.TenantID, cfg); err != nil {
		return domain.Agent{}, err
	}

	agent := domain.Agent{
		ID:       s.snowflake.Generate().Int64(),
		TenantID: p.TenantID,
		Config:   cfg,
		Status:   domain.AgentDraft,
	}

	created, err := s.agents.Create(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}

	audit(s.logger, "agent.created", "tenant_id", p.TenantID, "agent_id", created.ID)
	return created, nil
}

// Get returns a tenant-scoped agent.
func (s *AgentService) Get(ctx context.Context, p domain.Principal, id int64) (domain.Agent, error) {
	agent, err := s.agents.Get(ctx, p.TenantID, id)
	if err != nil {
		return domain.Agent{}, err
	}
	if err := tenant.Authorize(p, agent.TenantID); err != nil {
		return domain.Agent{}, err
	}
	return agent, nil
}

// List returns the tenant's agents, optionally filtered.
func (s *AgentService) List(ctx context.Context, p domain.Principal, filter repository.AgentFilter) ([]domain.Agent, error) {
	return s.agents.List(ctx, p.TenantID, filter)
}

// Update applies a patch while the agent is editable (DRAFT, STOPPED,
// FAILED); live agents conflict.
func (s *AgentService) Update(ctx context.Context, p domain.Principal, id int64, patch AgentPatch) (domain.Agent, error) {
	ctx, span := startSpan(ctx, s.tracer, "AgentService.Update")
	defer span.End()

	agent, err := s.Get(ctx, p, id)
	if err != nil {
		return domain.Agent{}, err
	}

	cfg := patch.apply(agent.Config)
	if err := s.validateConfig(ctx, p.TenantID, cfg); err != nil {
		return domain.Agent{}, err
	}

	updated, err := s.agents.UpdateConfig(ctx, p.TenantID, id, cfg)
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}

	audit(s.logger, "agent.updated", "tenant_id", p.TenantID, "agent_id", id)
	return updated, nil
}

// Delete removes an editable agent and releases every number bound to it.
func (s *AgentService) Delete(ctx context.Context, p domain.Principal, id int64) error {
	ctx, span := startSpan(ctx, s.tracer, "AgentService.Delete")
	defer span.End()

	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	if err := s.agents.Delete(ctx, p.TenantID, id); err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.numbers.ReleaseAll(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	audit(s.logger, "agent.deleted", "tenant_id", p.TenantID, "agent_id", id)
	return nil
}

// validateConfig enforces required fields and resolvable, distinct phone
// number references.
func (s *AgentService) validateConfig(ctx context.Context, tenantID int64, cfg domain.AgentConfig) error {
	required := map[string]string{
		"name":           cfg.Name,
		"knowledge_base": cfg.KnowledgeBase,
		"prompt":         cfg.Prompt,
		"guardrails":     cfg.Guardrails,
		"provider_sid":   cfg.ProviderSID,
		"provider_token": cfg.ProviderToken,
		"voice_id":       cfg.VoiceID,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return domain.NewValidation("%s is required", field)
		}
	}

	refs := map[string]int64{
		"call_number_id":     cfg.CallNumberID,
		"transfer_number_id": cfg.TransferNumberID,
		"summary_number_id":  cfg.SummaryNumberID,
	}
	seen := make(map[int64]string, len(refs))
	for field, id := range refs {
		if id == 0 {
			return domain.NewValidation("%s is required", field)
		}
		if prev, dup := seen[id]; dup {
			return domain.NewValidation("%s and %s reference the same number", prev, field)
		}
		seen[id] = field
		if _, err := s.numbers.Resolve(ctx, tenantID, id); err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				return domain.NewValidation("%s does not resolve to a known number", field)
			}
			return err
		}
	}
	return nil
}
