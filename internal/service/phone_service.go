package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/tenant"
)

// PhoneNumberService owns the exclusive binding between phone numbers and
// agents and generates webhook identifiers.
type PhoneNumberService struct {
	numbers        repository.PhoneNumberRepository
	snowflake      *snowflake.Node
	webhookBaseURL string
	logger         *zap.Logger
	tracer         trace.Tracer
}

// NewPhoneNumberService wires dependencies.
func NewPhoneNumberService(numbers repository.PhoneNumberRepository, node *snowflake.Node, webhookBaseURL string, logger *zap.Logger) *PhoneNumberService {
	return &PhoneNumberService{
		numbers:        numbers,
		snowflake:      node,
		webhookBaseURL: strings.TrimRight(webhookBaseURL, "/"),
		logger:         logger,
		tracer:         otel.Tracer("github.com/voxline/voxline-agents/internal/service"),
	}
}

// Create adds a number to the tenant's inventory as available.
func (s *PhoneNumberService) Create(ctx context.Context, p domain.Principal, number, description string) (domain.PhoneNumber, error) {
	ctx, span := startSpan(ctx, s.tracer, "PhoneNumberService.Create")
	defer span.End()

	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return domain.PhoneNumber{}, domain.NewValidation("number is required")
	}

	created, err := s.numbers.Create(ctx, domain.PhoneNumber{
		ID:          s.snowflake.Generate().Int64(),
		TenantID:    p.TenantID,
		Number:      trimmed,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, err
	}

	audit(s.logger, "number.created", "tenant_id", p.TenantID, "number_id", created.ID)
	return created, nil
}

// Get returns a tenant-scoped number.
func (s *PhoneNumberService) Get(ctx context.Context, p domain.Principal, id int64) (domain.PhoneNumber, error) {
	number, err := s.numbers.Get(ctx, p.TenantID, id)
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	if err := tenant.Authorize(p, number.TenantID); err != nil {
		return domain.PhoneNumber{}, err
	}
	return number, nil
}

// List returns the tenant's inventory.
func (s *PhoneNumberService) List(ctx context.Context, p domain.Principal) ([]domain.PhoneNumber, error) {
	return s.numbers.List(ctx, p.TenantID)
}

// Delete removes an unbound number; deleting a bound number conflicts.
func (s *PhoneNumberService) Delete(ctx context.Context, p domain.Principal, id int64) error {
	if err := s.numbers.Delete(ctx, p.TenantID, id); err != nil {
		return err
	}
	audit(s.logger, "number.deleted", "tenant_id", p.TenantID, "number_id", id)
	return nil
}

// WebhookURL derives the deterministic webhook endpoint for a binding.
// The same (agent, role) pair always maps to the same URL.
func (s *PhoneNumberService) WebhookURL(agentID int64, role domain.NumberRole) string {
	return fmt.Sprintf("%s/hooks/agents/%d/%s", s.webhookBaseURL, agentID, role)
}

// Assign binds a number to an agent for the given role. Reassigning the
// same number to the same agent is a no-op; a number held by another agent
// conflicts. At most one number holds a given role per agent afterwards.
func (s *PhoneNumberService) Assign(ctx context.Context, tenantID, numberID, agentID int64, role domain.NumberRole) (domain.PhoneNumber, error) {
	ctx, span := startSpan(ctx, s.tracer, "PhoneNumberService.Assign")
	defer span.End()

	if !role.Valid() {
		return domain.PhoneNumber{}, domain.NewValidation("unknown number role %q", role)
	}

	number, err := s.numbers.Assign(ctx, tenantID, numberID, agentID, role, s.WebhookURL(agentID, role))
	if err != nil {
		span.RecordError(err)
		return domain.PhoneNumber{}, err
	}

	audit(s.logger, "number.assigned", "tenant_id", tenantID, "number_id", numberID, "agent_id", agentID, "role", string(role))
	return number, nil
}

// Release frees a single number. Idempotent.
func (s *PhoneNumberService) Release(ctx context.Context, p domain.Principal, numberID int64) error {
	if err := tenant.RequireAdmin(p); err != nil {
		return err
	}
	// Scope check before the unscoped release.
	if _, err := s.numbers.Get(ctx, p.TenantID, numberID); err != nil {
		return err
	}
	if err := s.numbers.Release(ctx, numberID); err != nil {
		return err
	}
	audit(s.logger, "number.released", "tenant_id", p.TenantID, "number_id", numberID)
	return nil
}

// ReleaseNumber frees a number without a principal; used by the
// orchestrator's compensation path.
func (s *PhoneNumberService) ReleaseNumber(ctx context.Context, numberID int64) error {
	return s.numbers.Release(ctx, numberID)
}

// ReleaseAll frees every number bound to the agent. Idempotent; used on
// agent delete.
func (s *PhoneNumberService) ReleaseAll(ctx context.Context, agentID int64) error {
	if err := s.numbers.ReleaseAll(ctx, agentID); err != nil {
		return err
	}
	audit(s.logger, "number.released_all", "agent_id", agentID)
	return nil
}

// Resolve checks that a referenced number exists within the tenant.
func (s *PhoneNumberService) Resolve(ctx context.Context, tenantID, numberID int64) (domain.PhoneNumber, error) {
	return s.numbers.Get(ctx, tenantID, numberID)
}
