package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/voxline/voxline-agents/internal/adapter/provision"
	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/tenant"
)

var startableStates = []domain.AgentStatus{domain.AgentDraft, domain.AgentStopped, domain.AgentFailed}

// DeploymentService drives agent lifecycle transitions that call the
// provisioning backend. Concurrent starts (or stops) for the same agent
// collapse into one underlying run whose result every caller observes;
// start and stop for the same agent never overlap.
type DeploymentService struct {
	agents  repository.AgentRepository
	numbers *PhoneNumberService
	backend provision.Invoker

	flight  singleflight.Group
	locksMu sync.Mutex
	locks   map[int64]*agentLock

	maxTries uint
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDeploymentService wires dependencies. maxRetries bounds the extra
// provisioning attempts after the first for transient failures.
func NewDeploymentService(agents repository.AgentRepository, numbers *PhoneNumberService, backend provision.Invoker, maxRetries int, logger *zap.Logger) *DeploymentService {
	tries := uint(1)
	if maxRetries > 0 {
		tries += uint(maxRetries)
	}
	return &DeploymentService{
		agents:   agents,
		numbers:  numbers,
		backend:  backend,
		locks:    make(map[int64]*agentLock),
		maxTries: tries,
		logger:   logger,
		tracer:   otel.Tracer("github.com/voxline/voxline-agents/internal/service"),
	}
}

// Start deploys the agent. Calling it on a RUNNING agent succeeds without
// a remote call; calling it while another start is in flight joins that
// flight instead of issuing a second one.
func (s *DeploymentService) Start(ctx context.Context, p domain.Principal, agentID int64) (domain.Agent, error) {
	ctx, span := startSpan(ctx, s.tracer, "DeploymentService.Start")
	defer span.End()

	agent, err := s.agents.Get(ctx, p.TenantID, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if err := tenant.Authorize(p, agent.TenantID); err != nil {
		return domain.Agent{}, err
	}

	// The run outlives an abandoned request: provisioning is not locally
	// cancellable, so its outcome must still be persisted.
	runCtx := context.WithoutCancel(ctx)
	result, err, _ := s.flight.Do(fmt.Sprintf("start:%d", agentID), func() (any, error) {
		return s.runStart(runCtx, p.TenantID, agentID)
	})
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}
	return result.(domain.Agent), nil
}

// Stop tears the agent down. Calling it on a STOPPED agent succeeds
// without a remote call.
func (s *DeploymentService) Stop(ctx context.Context, p domain.Principal, agentID int64) (domain.Agent, error) {
	ctx, span := startSpan(ctx, s.tracer, "DeploymentService.Stop")
	defer span.End()

	agent, err := s.agents.Get(ctx, p.TenantID, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if err := tenant.Authorize(p, agent.TenantID); err != nil {
		return domain.Agent{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	result, err, _ := s.flight.Do(fmt.Sprintf("stop:%d", agentID), func() (any, error) {
		return s.runStop(runCtx, p.TenantID, agentID)
	})
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}
	return result.(domain.Agent), nil
}

func (s *DeploymentService) runStart(ctx context.Context, tenantID, agentID int64) (domain.Agent, error) {
	unlock := s.lock(agentID)
	defer unlock()

	agent, err := s.agents.Get(ctx, tenantID, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if agent.Status == domain.AgentRunning {
		return agent, nil
	}
	previous := agent.Status

	agent, err = s.agents.TransitionStatus(ctx, agentID, startableStates, domain.AgentDeploying)
	if err != nil {
		return domain.Agent{}, err
	}

	boundNow, err := s.bindNumbers(ctx, agent)
	if err != nil {
		s.releaseNumbers(ctx, boundNow)
		if _, revertErr := s.agents.TransitionStatus(ctx, agentID, []domain.AgentStatus{domain.AgentDeploying}, previous); revertErr != nil {
			s.logger.Error("revert status after bind failure",
				zap.Int64("agent_id", agentID), zap.Error(revertErr))
		}
		return domain.Agent{}, err
	}

	resp, err := s.invoke(ctx, provision.Request{
		Action:  provision.ActionDeploy,
		AgentID: agent.ID,
		Config:  agent.Config,
	})
	if err != nil {
		downstream := s.downstreamError("deploy", err)
		if _, failErr := s.agents.MarkFailed(ctx, agentID, downstream.Message); failErr != nil {
			s.logger.Error("mark agent failed", zap.Int64("agent_id", agentID), zap.Error(failErr))
		}
		// Numbers bound by this run are freed so availability matches
		// the binding state even on the failure path.
		s.releaseNumbers(ctx, boundNow)
		audit(s.logger, "agent.deploy_failed", "tenant_id", tenantID, "agent_id", agentID, "error", downstream.Message)
		return domain.Agent{}, downstream
	}

	running, err := s.agents.MarkRunning(ctx, agentID, resp.DeploymentRef)
	if err != nil {
		return domain.Agent{}, err
	}

	audit(s.logger, "agent.started", "tenant_id", tenantID, "agent_id", agentID, "deployment_ref", resp.DeploymentRef)
	return running, nil
}

func (s *DeploymentService) runStop(ctx context.Context, tenantID, agentID int64) (domain.Agent, error) {
	unlock := s.lock(agentID)
	defer unlock()

	agent, err := s.agents.Get(ctx, tenantID, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if agent.Status == domain.AgentStopped {
		return agent, nil
	}

	agent, err = s.agents.TransitionStatus(ctx, agentID, []domain.AgentStatus{domain.AgentRunning}, domain.AgentStopping)
	if err != nil {
		return domain.Agent{}, err
	}

	_, err = s.invoke(ctx, provision.Request{
		Action:  provision.ActionTeardown,
		AgentID: agent.ID,
		Config:  agent.Config,
	})
	if err != nil {
		downstream := s.downstreamError("teardown", err)
		if _, failErr := s.agents.MarkFailed(ctx, agentID, downstream.Message); failErr != nil {
			s.logger.Error("mark agent failed", zap.Int64("agent_id", agentID), zap.Error(failErr))
		}
		// Numbers stay bound: the remote call resource may still be live.
		audit(s.logger, "agent.teardown_failed", "tenant_id", tenantID, "agent_id", agentID, "error", downstream.Message)
		return domain.Agent{}, downstream
	}

	stopped, err := s.agents.MarkStopped(ctx, agentID)
	if err != nil {
		return domain.Agent{}, err
	}

	audit(s.logger, "agent.stopped", "tenant_id", tenantID, "agent_id", agentID)
	return stopped, nil
}

// bindNumbers assigns the agent's three configured numbers and reports
// which of them this run newly took, so a failed deploy can hand back
// exactly those.
func (s *DeploymentService) bindNumbers(ctx context.Context, agent domain.Agent) ([]int64, error) {
	boundNow := make([]int64, 0, 3)
	for _, role := range []domain.NumberRole{domain.NumberRoleCall, domain.NumberRoleTransfer, domain.NumberRoleSummary} {
		numberID := agent.NumberRefs()[role]
		current, err := s.numbers.Resolve(ctx, agent.TenantID, numberID)
		if err != nil {
			return boundNow, err
		}
		freshlyBound := !current.BoundTo(agent.ID)
		if _, err := s.numbers.Assign(ctx, agent.TenantID, numberID, agent.ID, role); err != nil {
			return boundNow, err
		}
		if freshlyBound {
			boundNow = append(boundNow, numberID)
		}
	}
	return boundNow, nil
}

func (s *DeploymentService) releaseNumbers(ctx context.Context, numberIDs []int64) {
	for _, id := range numberIDs {
		if err := s.numbers.ReleaseNumber(ctx, id); err != nil {
			s.logger.Error("release number during compensation",
				zap.Int64("number_id", id), zap.Error(err))
		}
	}
}

// invoke issues the provisioning call with bounded retries. Transient
// transport failures are retried with backoff; backend-reported failures
// are permanent.
func (s *DeploymentService) invoke(ctx context.Context, req provision.Request) (provision.Response, error) {
	operation := func() (provision.Response, error) {
		resp, err := s.backend.Invoke(ctx, req)
		if err != nil {
			var backendErr *provision.BackendError
			if errors.As(err, &backendErr) {
				return provision.Response{}, backoff.Permanent(err)
			}
			return provision.Response{}, err
		}
		return resp, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(s.maxTries),
	)
}

func (s *DeploymentService) downstreamError(action string, err error) *domain.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewDownstreamTimeout(fmt.Sprintf("provisioning %s timed out", action), err)
	}
	return domain.NewDownstream(fmt.Sprintf("provisioning %s failed", action), err)
}

// agentLock is a reference-counted per-agent mutex. The table entry is
// dropped when the last holder releases it, so deleted agents do not
// accumulate locks.
type agentLock struct {
	mu   sync.Mutex
	refs int
}

func (s *DeploymentService) lock(agentID int64) func() {
	s.locksMu.Lock()
	l, ok := s.locks[agentID]
	if !ok {
		l = &agentLock{}
		s.locks[agentID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, agentID)
		}
		s.locksMu.Unlock()
	}
}
