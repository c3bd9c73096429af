package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/adapter/provision"
	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/service"
)

type deployFixture struct {
	deployments *service.DeploymentService
	agents      *service.AgentService
	numbers     *service.PhoneNumberService
	agentRepo   *memAgentRepo
	numberRepo  *memNumberRepo
	invoker     *fakeInvoker
	principal   domain.Principal
	agent       domain.Agent
}

func newDeployFixture(t *testing.T, maxRetries int) *deployFixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	numberRepo := newMemNumberRepo()
	numbers := service.NewPhoneNumberService(numberRepo, node, "https://hooks.test", zap.NewNop())
	agentRepo := newMemAgentRepo()
	agents := service.NewAgentService(agentRepo, numbers, node, zap.NewNop())
	invoker := &fakeInvoker{}
	deployments := service.NewDeploymentService(agentRepo, numbers, invoker, maxRetries, zap.NewNop())

	principal := domain.Principal{UserID: 1, TenantID: 100, Role: domain.RoleDeveloper}

	ctx := context.Background()
	call, err := numbers.Create(ctx, principal, "+15550000001", "")
	require.NoError(t, err)
	transfer, err := numbers.Create(ctx, principal, "+15550000002", "")
	require.NoError(t, err)
	summary, err := numbers.Create(ctx, principal, "+15550000003", "")
	require.NoError(t, err)

	agent, err := agents.Create(ctx, principal, domain.AgentConfig{
		Name:             "support-bot",
		KnowledgeBase:    "kb-1",
		Prompt:           "You answer support calls.",
		Guardrails:       "no billing changes",
		WebhookTarget:    "https://example.test/events",
		CallNumberID:     call.ID,
		TransferNumberID: transfer.ID,
		SummaryNumberID:  summary.ID,
		ProviderSID:      "AC123",
		ProviderToken:    "tok-secret",
		VoiceID:          "nova",
	})
	require.NoError(t, err)

	return &deployFixture{
		deployments: deployments,
		agents:      agents,
		numbers:     numbers,
		agentRepo:   agentRepo,
		numberRepo:  numberRepo,
		invoker:     invoker,
		principal:   principal,
		agent:       agent,
	}
}

func (f *deployFixture) number(t *testing.T, id int64) domain.PhoneNumber {
	t.Helper()
	number, err := f.numbers.Get(context.Background(), f.principal, id)
	require.NoError(t, err)
	return number
}

func TestStartDeploysAndBindsNumbers(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		return provision.Response{Status: "ok", DeploymentRef: "dep-42"}, nil
	}

	running, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AgentRunning, running.Status)
	require.Equal(t, "dep-42", running.DeploymentRef)
	require.Empty(t, running.LastError)

	call := f.number(t, f.agent.Config.CallNumberID)
	require.False(t, call.IsAvailable)
	require.Equal(t, f.agent.ID, *call.AgentID)
	require.Equal(t, domain.NumberRoleCall, *call.AssignedRole)

	transfer := f.number(t, f.agent.Config.TransferNumberID)
	require.Equal(t, domain.NumberRoleTransfer, *transfer.AssignedRole)
	require.NotEqual(t, *call.WebhookURL, *transfer.WebhookURL)

	require.Equal(t, 1, f.invoker.callCount(provision.ActionDeploy))
}

func TestStartOnRunningAgentIsANoOp(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)

	again, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AgentRunning, again.Status)
	require.Equal(t, 1, f.invoker.callCount(provision.ActionDeploy))
}

func TestStartFailureMarksFailedAndReleasesNumbers(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 3)
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		return provision.Response{}, &provision.BackendError{Message: "invalid voice"}
	}

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeDownstream))

	failed, getErr := f.agents.Get(ctx, f.principal, f.agent.ID)
	require.NoError(t, getErr)
	require.Equal(t, domain.AgentFailed, failed.Status)
	require.NotEmpty(t, failed.LastError)

	for _, id := range []int64{f.agent.Config.CallNumberID, f.agent.Config.TransferNumberID, f.agent.Config.SummaryNumberID} {
		number := f.number(t, id)
		require.True(t, number.IsAvailable)
		require.Nil(t, number.AgentID)
	}

	// Backend rejections are permanent; the retry budget is not spent.
	require.Equal(t, 1, f.invoker.callCount(provision.ActionDeploy))
}

func TestStartTimeoutSurfacesGatewayTimeout(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		return provision.Response{}, context.DeadlineExceeded
	}

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeDownstreamTimeout))

	failed, getErr := f.agents.Get(ctx, f.principal, f.agent.ID)
	require.NoError(t, getErr)
	require.Equal(t, domain.AgentFailed, failed.Status)
}

func TestStartRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 2)

	var mu sync.Mutex
	attempts := 0
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return provision.Response{}, errors.New("connection refused")
		}
		return provision.Response{Status: "ok", DeploymentRef: "dep-retry"}, nil
	}

	running, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AgentRunning, running.Status)
	require.Equal(t, "dep-retry", running.DeploymentRef)
	require.Equal(t, 3, f.invoker.callCount(provision.ActionDeploy))
}

func TestConcurrentStartsShareOneDeploy(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		time.Sleep(100 * time.Millisecond)
		return provision.Response{Status: "ok", DeploymentRef: "dep-shared"}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]domain.Agent, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.deployments.Start(ctx, f.principal, f.agent.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, domain.AgentRunning, results[i].Status)
		require.Equal(t, "dep-shared", results[i].DeploymentRef)
	}
	require.Equal(t, 1, f.invoker.callCount(provision.ActionDeploy))
}

func TestStopTearsDownAndKeepsNumbersBound(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)

	stopped, err := f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AgentStopped, stopped.Status)
	require.Empty(t, stopped.DeploymentRef)
	require.Equal(t, 1, f.invoker.callCount(provision.ActionTeardown))

	// Bindings survive a clean stop; only delete or forced release frees them.
	call := f.number(t, f.agent.Config.CallNumberID)
	require.False(t, call.IsAvailable)

	// A stopped agent can be edited and started again.
	name := "support-bot-v2"
	_, err = f.agents.Update(ctx, f.principal, f.agent.ID, service.AgentPatch{Name: &name})
	require.NoError(t, err)

	restarted, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AgentRunning, restarted.Status)
}

func TestStopOnStoppedAgentIsANoOp(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	_, err = f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)

	_, err = f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.invoker.callCount(provision.ActionTeardown))
}

func TestStopDraftAgentConflicts(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeConflict))
}

func TestStopFailureKeepsNumbersBound(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)

	f.invoker.teardown = func(provision.Request) (provision.Response, error) {
		return provision.Response{}, &provision.BackendError{Message: "teardown refused"}
	}

	_, err = f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeDownstream))

	failed, getErr := f.agents.Get(ctx, f.principal, f.agent.ID)
	require.NoError(t, getErr)
	require.Equal(t, domain.AgentFailed, failed.Status)
	require.NotEmpty(t, failed.LastError)

	// The remote deployment may still be live, so bindings are not touched.
	call := f.number(t, f.agent.Config.CallNumberID)
	require.False(t, call.IsAvailable)
	require.Equal(t, f.agent.ID, *call.AgentID)
}

func TestRestartAfterFailureKeepsExistingBindings(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	// First run succeeds, then a failed teardown leaves the agent FAILED
	// with its numbers still bound.
	_, err := f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.NoError(t, err)
	f.invoker.teardown = func(provision.Request) (provision.Response, error) {
		return provision.Response{}, &provision.BackendError{Message: "teardown refused"}
	}
	_, err = f.deployments.Stop(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeDownstream))

	// A failed start from here must not release the bindings the agent
	// already held before this run.
	f.invoker.deploy = func(provision.Request) (provision.Response, error) {
		return provision.Response{}, &provision.BackendError{Message: "capacity exhausted"}
	}
	_, err = f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeDownstream))

	call := f.number(t, f.agent.Config.CallNumberID)
	require.False(t, call.IsAvailable)
	require.Equal(t, f.agent.ID, *call.AgentID)
}

func TestStartFailsWhenNumberHeldByAnotherAgent(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	_, err := f.numbers.Assign(ctx, f.principal.TenantID, f.agent.Config.TransferNumberID, 9999, domain.NumberRoleCall)
	require.NoError(t, err)

	_, err = f.deployments.Start(ctx, f.principal, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeConflict))

	// No provisioning call was made and the agent reverted to DRAFT.
	require.Equal(t, 0, f.invoker.callCount(provision.ActionDeploy))
	agent, getErr := f.agents.Get(ctx, f.principal, f.agent.ID)
	require.NoError(t, getErr)
	require.Equal(t, domain.AgentDraft, agent.Status)

	// The call number bound before the conflict was handed back.
	call := f.number(t, f.agent.Config.CallNumberID)
	require.True(t, call.IsAvailable)
}

func TestStartOtherTenantAgentNotFound(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, 0)

	outsider := domain.Principal{UserID: 5, TenantID: 200, Role: domain.RoleAdmin}
	_, err := f.deployments.Start(ctx, outsider, f.agent.ID)
	require.True(t, domain.IsCode(err, domain.CodeNotFound))
	require.Equal(t, 0, f.invoker.callCount(provision.ActionDeploy))
}
