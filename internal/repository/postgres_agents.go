package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/voxline-agents/internal/domain"
)

// PostgresAgentRepo implements AgentRepository over pgx.
type PostgresAgentRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAgentRepo(pool *pgxpool.Pool) *PostgresAgentRepo {
	return &PostgresAgentRepo{db: pool}
}

const agentColumns = `id, tenant_id, name, knowledge_base, prompt, guardrails, webhook_target,
call_number_id, transfer_number_id, summary_number_id, provider_sid, provider_token, voice_id,
folder_id, status, version, deployment_ref, last_error, created_at, updated_at`

const insertAgentSQL = `INSERT INTO agents (id, tenant_id, name, knowledge_base, prompt, guardrails, webhook_target,
call_number_id, transfer_number_id, summary_number_id, provider_sid, provider_token, voice_id, folder_id, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) Create(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	cfg := agent.Config
	row := r.db.QueryRow(ctx, insertAgentSQL,
		agent.ID, agent.TenantID, cfg.Name, cfg.KnowledgeBase, cfg.Prompt, cfg.Guardrails, cfg.WebhookTarget,
		cfg.CallNumberID, cfg.TransferNumberID, cfg.SummaryNumberID, cfg.ProviderSID, cfg.ProviderToken,
		cfg.VoiceID, cfg.FolderID, string(agent.Status),
	)
	created, err := scanAgent(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Agent{}, domain.NewConflict("agent name %q already exists", cfg.Name)
		}
		return domain.Agent{}, internal("create agent", err)
	}
	return created, nil
}

const selectAgentSQL = `SELECT ` + agentColumns + ` FROM agents WHERE tenant_id = $1 AND id = $2`

func (r *PostgresAgentRepo) Get(ctx context.Context, tenantID, id int64) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, selectAgentSQL, tenantID, id)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
		}
		return domain.Agent{}, internal("get agent", err)
	}
	return agent, nil
}

const listAgentsSQL = `SELECT ` + agentColumns + ` FROM agents
WHERE tenant_id = $1
  AND ($2 = '' OR status = $2)
  AND ($3::bigint IS NULL OR folder_id = $3)
ORDER BY created_at`

func (r *PostgresAgentRepo) List(ctx context.Context, tenantID int64, filter AgentFilter) ([]domain.Agent, error) {
	rows, err := r.db.Query(ctx, listAgentsSQL, tenantID, string(filter.Status), filter.FolderID)
	if err != nil {
		return nil, internal("list agents", err)
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, internal("scan agent", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list agents", err)
	}
	return agents, nil
}

// updateAgentConfigSQL only succeeds while the agent is editable; the
// status guard is part of the statement so a concurrent start cannot slip
// an edit into a live agent.
const updateAgentConfigSQL = `UPDATE agents SET
name = $3, knowledge_base = $4, prompt = $5, guardrails = $6, webhook_target = $7,
call_number_id = $8, transfer_number_id = $9, summary_number_id = $10,
provider_sid = $11, provider_token = $12, voice_id = $13, folder_id = $14,
version = version + 1, updated_at = now()
WHERE tenant_id = $1 AND id = $2 AND status IN ('DRAFT', 'STOPPED', 'FAILED')
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) UpdateConfig(ctx context.Context, tenantID, id int64, cfg domain.AgentConfig) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, updateAgentConfigSQL,
		tenantID, id, cfg.Name, cfg.KnowledgeBase, cfg.Prompt, cfg.Guardrails, cfg.WebhookTarget,
		cfg.CallNumberID, cfg.TransferNumberID, cfg.SummaryNumberID, cfg.ProviderSID, cfg.ProviderToken,
		cfg.VoiceID, cfg.FolderID,
	)
	updated, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return r.editMiss(ctx, tenantID, id)
		}
		return domain.Agent{}, internal("update agent", err)
	}
	return updated, nil
}

const deleteAgentSQL = `DELETE FROM agents
WHERE tenant_id = $1 AND id = $2 AND status IN ('DRAFT', 'STOPPED', 'FAILED')`

func (r *PostgresAgentRepo) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, deleteAgentSQL, tenantID, id)
	if err != nil {
		return internal("delete agent", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.editMiss(ctx, tenantID, id); err != nil {
			return err
		}
	}
	return nil
}

// editMiss distinguishes a missing agent from one frozen by its lifecycle
// state after a guarded update matched no rows.
func (r *PostgresAgentRepo) editMiss(ctx context.Context, tenantID, id int64) (domain.Agent, error) {
	agent, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return domain.Agent{}, err
	}
	return domain.Agent{}, domain.NewConflict("agent %d is %s and cannot be edited", id, agent.Status)
}

const transitionStatusSQL = `UPDATE agents SET
status = $2,
version = version + 1,
last_error = CASE WHEN $2 = 'DEPLOYING' THEN '' ELSE last_error END,
updated_at = now()
WHERE id = $1 AND status = ANY($3)
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) TransitionStatus(ctx context.Context, id int64, from []domain.AgentStatus, to domain.AgentStatus) (domain.Agent, error) {
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}
	row := r.db.QueryRow(ctx, transitionStatusSQL, id, string(to), states)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return r.transitionMiss(ctx, id, to)
		}
		return domain.Agent{}, internal("transition agent status", err)
	}
	return agent, nil
}

const markRunningSQL = `UPDATE agents SET
status = 'RUNNING', deployment_ref = $2, last_error = '', version = version + 1, updated_at = now()
WHERE id = $1 AND status = 'DEPLOYING'
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) MarkRunning(ctx context.Context, id int64, deploymentRef string) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, markRunningSQL, id, deploymentRef)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return r.transitionMiss(ctx, id, domain.AgentRunning)
		}
		return domain.Agent{}, internal("mark agent running", err)
	}
	return agent, nil
}

const markStoppedSQL = `UPDATE agents SET
status = 'STOPPED', deployment_ref = '', version = version + 1, updated_at = now()
WHERE id = $1 AND status = 'STOPPING'
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) MarkStopped(ctx context.Context, id int64) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, markStoppedSQL, id)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return r.transitionMiss(ctx, id, domain.AgentStopped)
		}
		return domain.Agent{}, internal("mark agent stopped", err)
	}
	return agent, nil
}

const markFailedSQL = `UPDATE agents SET
status = 'FAILED', last_error = $2, version = version + 1, updated_at = now()
WHERE id = $1 AND status IN ('DEPLOYING', 'STOPPING')
RETURNING ` + agentColumns

func (r *PostgresAgentRepo) MarkFailed(ctx context.Context, id int64, lastError string) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, markFailedSQL, id, lastError)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return r.transitionMiss(ctx, id, domain.AgentFailed)
		}
		return domain.Agent{}, internal("mark agent failed", err)
	}
	return agent, nil
}

func (r *PostgresAgentRepo) transitionMiss(ctx context.Context, id int64, to domain.AgentStatus) (domain.Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
		}
		return domain.Agent{}, internal("get agent", err)
	}
	return domain.Agent{}, domain.NewConflict("agent %d is %s and cannot move to %s", id, agent.Status, to)
}

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var agent domain.Agent
	var status string
	if err := row.Scan(
		&agent.ID, &agent.TenantID,
		&agent.Config.Name, &agent.Config.KnowledgeBase, &agent.Config.Prompt, &agent.Config.Guardrails,
		&agent.Config.WebhookTarget, &agent.Config.CallNumberID, &agent.Config.TransferNumberID,
		&agent.Config.SummaryNumberID, &agent.Config.ProviderSID, &agent.Config.ProviderToken,
		&agent.Config.VoiceID, &agent.Config.FolderID,
		&status, &agent.Version, &agent.DeploymentRef, &agent.LastError,
		&agent.CreatedAt, &agent.UpdatedAt,
	); err != nil {
		return domain.Agent{}, err
	}
	agent.Status = domain.AgentStatus(status)
	return agent, nil
}
