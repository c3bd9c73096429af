package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/voxline/voxline-agents/internal/adapter/provision"
	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
)

// In-memory repository fakes mirroring the conditional-update semantics of
// the postgres implementations.

type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]domain.User)}
}

func (m *memUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return domain.User{}, domain.NewConflict("email %q already registered", user.Email)
		}
	}
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.NewNotFound("user %q not found", email)
}

func (m *memUserRepo) GetByID(ctx context.Context, tenantID, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.TenantID != tenantID {
		return domain.User{}, domain.NewNotFound("user %d not found", userID)
	}
	return user, nil
}

func (m *memUserRepo) List(ctx context.Context, tenantID int64) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.User, 0)
	for _, user := range m.users {
		if user.TenantID == tenantID {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *memUserRepo) Delete(ctx context.Context, tenantID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.TenantID != tenantID {
		return domain.NewNotFound("user %d not found", userID)
	}
	delete(m.users, userID)
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]struct{}
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]struct{})}
}

func (m *memSessionStore) Add(ctx context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = struct{}{}
	return nil
}

func (m *memSessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok, nil
}

func (m *memSessionStore) Remove(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

type memAgentRepo struct {
	mu     sync.Mutex
	agents map[int64]domain.Agent
}

func newMemAgentRepo() *memAgentRepo {
	return &memAgentRepo{agents: make(map[int64]domain.Agent)}
}

func (m *memAgentRepo) Create(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent.Version = 1
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = agent.CreatedAt
	m.agents[agent.ID] = agent
	return agent, nil
}

func (m *memAgentRepo) Get(ctx context.Context, tenantID, id int64) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok || agent.TenantID != tenantID {
		return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
	}
	return agent, nil
}

func (m *memAgentRepo) List(ctx context.Context, tenantID int64, filter repository.AgentFilter) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agents := make([]domain.Agent, 0)
	for _, agent := range m.agents {
		if agent.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && agent.Status != filter.Status {
			continue
		}
		if filter.FolderID != nil && (agent.Config.FolderID == nil || *agent.Config.FolderID != *filter.FolderID) {
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (m *memAgentRepo) UpdateConfig(ctx context.Context, tenantID, id int64, cfg domain.AgentConfig) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok || agent.TenantID != tenantID {
		return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
	}
	if !agent.Status.Editable() {
		return domain.Agent{}, domain.NewConflict("agent %d is %s and cannot be edited", id, agent.Status)
	}
	agent.Config = cfg
	agent.Version++
	agent.UpdatedAt = time.Now()
	m.agents[id] = agent
	return agent, nil
}

func (m *memAgentRepo) Delete(ctx context.Context, tenantID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok || agent.TenantID != tenantID {
		return domain.NewNotFound("agent %d not found", id)
	}
	if !agent.Status.Editable() {
		return domain.NewConflict("agent %d is %s and cannot be edited", id, agent.Status)
	}
	delete(m.agents, id)
	return nil
}

func (m *memAgentRepo) TransitionStatus(ctx context.Context, id int64, from []domain.AgentStatus, to domain.AgentStatus) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
	}
	matched := false
	for _, status := range from {
		if agent.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return domain.Agent{}, domain.NewConflict("agent %d is %s and cannot move to %s", id, agent.Status, to)
	}
	agent.Status = to
	agent.Version++
	if to == domain.AgentDeploying {
		agent.LastError = ""
	}
	m.agents[id] = agent
	return agent, nil
}

func (m *memAgentRepo) MarkRunning(ctx context.Context, id int64, deploymentRef string) (domain.Agent, error) {
	return m.mark(id, domain.AgentRunning, []domain.AgentStatus{domain.AgentDeploying}, func(agent *domain.Agent) {
		agent.DeploymentRef = deploymentRef
		agent.LastError = ""
	})
}

func (m *memAgentRepo) MarkStopped(ctx context.Context, id int64) (domain.Agent, error) {
	return m.mark(id, domain.AgentStopped, []domain.AgentStatus{domain.AgentStopping}, func(agent *domain.Agent) {
		agent.DeploymentRef = ""
	})
}

func (m *memAgentRepo) MarkFailed(ctx context.Context, id int64, lastError string) (domain.Agent, error) {
	return m.mark(id, domain.AgentFailed, []domain.AgentStatus{domain.AgentDeploying, domain.AgentStopping}, func(agent *domain.Agent) {
		agent.LastError = lastError
	})
}

func (m *memAgentRepo) mark(id int64, to domain.AgentStatus, from []domain.AgentStatus, mutate func(*domain.Agent)) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NewNotFound("agent %d not found", id)
	}
	matched := false
	for _, status := range from {
		if agent.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return domain.Agent{}, domain.NewConflict("agent %d is %s and cannot move to %s", id, agent.Status, to)
	}
	agent.Status = to
	agent.Version++
	mutate(&agent)
	m.agents[id] = agent
	return agent, nil
}

type memNumberRepo struct {
	mu        sync.Mutex
	numbers   map[int64]domain.PhoneNumber
	assignErr error // when set, Assign fails without touching any row
}

func newMemNumberRepo() *memNumberRepo {
	return &memNumberRepo{numbers: make(map[int64]domain.PhoneNumber)}
}

func (m *memNumberRepo) Create(ctx context.Context, number domain.PhoneNumber) (domain.PhoneNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.numbers {
		if existing.Number == number.Number {
			return domain.PhoneNumber{}, domain.NewConflict("number %q already exists", number.Number)
		}
	}
	number.IsAvailable = true
	number.CreatedAt = time.Now()
	number.UpdatedAt = number.CreatedAt
	m.numbers[number.ID] = number
	return number, nil
}

func (m *memNumberRepo) Get(ctx context.Context, tenantID, id int64) (domain.PhoneNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	number, ok := m.numbers[id]
	if !ok || number.TenantID != tenantID {
		return domain.PhoneNumber{}, domain.NewNotFound("phone number %d not found", id)
	}
	return number, nil
}

func (m *memNumberRepo) List(ctx context.Context, tenantID int64) ([]domain.PhoneNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	numbers := make([]domain.PhoneNumber, 0)
	for _, number := range m.numbers {
		if number.TenantID == tenantID {
			numbers = append(numbers, number)
		}
	}
	return numbers, nil
}

func (m *memNumberRepo) ListByAgent(ctx context.Context, agentID int64) ([]domain.PhoneNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	numbers := make([]domain.PhoneNumber, 0)
	for _, number := range m.numbers {
		if number.BoundTo(agentID) {
			numbers = append(numbers, number)
		}
	}
	return numbers, nil
}

func (m *memNumberRepo) Delete(ctx context.Context, tenantID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	number, ok := m.numbers[id]
	if !ok || number.TenantID != tenantID {
		return domain.NewNotFound("phone number %d not found", id)
	}
	if !number.IsAvailable {
		return domain.NewConflict("number %q is bound to agent %d", number.Number, *number.AgentID)
	}
	delete(m.numbers, id)
	return nil
}

// Assign mirrors the transactional postgres statement pair: the bind and
// the release of the previous role-holder happen under one lock, or not
// at all.
func (m *memNumberRepo) Assign(ctx context.Context, tenantID, numberID, agentID int64, role domain.NumberRole, webhookURL string) (domain.PhoneNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return domain.PhoneNumber{}, m.assignErr
	}
	number, ok := m.numbers[numberID]
	if !ok || number.TenantID != tenantID {
		return domain.PhoneNumber{}, domain.NewNotFound("phone number %d not found", numberID)
	}
	if !number.IsAvailable && !number.BoundTo(agentID) {
		return domain.PhoneNumber{}, domain.NewConflict("number %q is bound to agent %d", number.Number, *number.AgentID)
	}
	for id, other := range m.numbers {
		if id == numberID || !other.BoundTo(agentID) {
			continue
		}
		if other.AssignedRole != nil && *other.AssignedRole == role {
			m.numbers[id] = released(other)
		}
	}
	number.IsAvailable = false
	number.AgentID = &agentID
	number.AssignedRole = &role
	number.WebhookURL = &webhookURL
	number.UpdatedAt = time.Now()
	m.numbers[numberID] = number
	return number, nil
}

func (m *memNumberRepo) Release(ctx context.Context, numberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if number, ok := m.numbers[numberID]; ok {
		m.numbers[numberID] = released(number)
	}
	return nil
}

func (m *memNumberRepo) ReleaseAll(ctx context.Context, agentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, number := range m.numbers {
		if number.BoundTo(agentID) {
			m.numbers[id] = released(number)
		}
	}
	return nil
}

func released(number domain.PhoneNumber) domain.PhoneNumber {
	number.IsAvailable = true
	number.AgentID = nil
	number.AssignedRole = nil
	number.WebhookURL = nil
	number.UpdatedAt = time.Now()
	return number
}

// fakeInvoker scripts provisioning backend behavior per action and counts
// calls.

type fakeInvoker struct {
	mu       sync.Mutex
	calls    []provision.Request
	deploy   func(req provision.Request) (provision.Response, error)
	teardown func(req provision.Request) (provision.Response, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, req provision.Request) (provision.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	switch req.Action {
	case provision.ActionDeploy:
		if f.deploy != nil {
			return f.deploy(req)
		}
	case provision.ActionTeardown:
		if f.teardown != nil {
			return f.teardown(req)
		}
	}
	return provision.Response{Status: "ok", DeploymentRef: "dep-1"}, nil
}

func (f *fakeInvoker) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Action == action {
			count++
		}
	}
	return count
}
