package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/domain"
)

// Actions accepted by the provisioning backend.
const (
	ActionDeploy   = "deploy"
	ActionTeardown = "teardown"
)

// Request is the provisioning backend wire contract.
type Request struct {
	Action  string             `json:"action"`
	AgentID int64              `json:"agentId,string"`
	Config  domain.AgentConfig `json:"config"`
}

// Response carries the backend's outcome for a deploy or teardown.
type Response struct {
	Status        string `json:"status"`
	DeploymentRef string `json:"deploymentRef,omitempty"`
	WebhookURL    string `json:"webhookUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// BackendError is a failure the backend itself reported. It is permanent:
// retrying the same payload yields the same rejection.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("provisioning backend rejected request: %s", e.Message)
}

// Invoker issues a single synchronous provisioning call. Transport-level
// failures (connect errors, timeouts, 5xx) come back as plain errors and
// may be retried; *BackendError must not be.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Client talks to the provisioning backend over HTTP.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

var _ Invoker = (*Client)(nil)

// NewClient creates a provisioning client with a bounded per-call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &Client{httpClient: client, logger: logger}
}

// Invoke posts one provisioning request and classifies the outcome.
func (c *Client) Invoke(ctx context.Context, req Request) (Response, error) {
	var response Response
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		Post("/v1/provision")

	if err != nil {
		c.logger.Warn("provisioning call failed",
			zap.String("action", req.Action),
			zap.Int64("agent_id", req.AgentID),
			zap.Error(err),
		)
		return Response{}, fmt.Errorf("call provisioning backend: %w", err)
	}

	if resp.StatusCode() >= 500 {
		return Response{}, fmt.Errorf("provisioning backend returned %d", resp.StatusCode())
	}
	if resp.StatusCode() >= 400 {
		return Response{}, &BackendError{Message: fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String())}
	}
	if response.Status != "ok" {
		return Response{}, &BackendError{Message: response.Error}
	}

	c.logger.Info("provisioning call succeeded",
		zap.String("action", req.Action),
		zap.Int64("agent_id", req.AgentID),
		zap.String("deployment_ref", response.DeploymentRef),
	)
	return response, nil
}
