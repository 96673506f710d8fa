package api

import (
	"context"
	"fmt"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	agentsRoot      = "/api/agents/"
	agentsMe        = "/api/agents/me"
	agentsDashboard = "/api/agents/me/dashboard"
	agentsGenerate  = "/api/agents/me/generate-content"
	agentsAction    = "/api/agents/me/actions/%d/%s"
)

// CreateAgent creates the caller's agent from the onboarding answers.
func (c *Client) CreateAgent(ctx context.Context, q models.Questionnaire) (*models.Agent, error) {
	res, err := c.r(ctx).
		SetBody(q).
		SetResult(&models.Agent{}).
		Post(agentsRoot)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return res.Result().(*models.Agent), nil
}

func (c *Client) MyAgent(ctx context.Context) (*models.Agent, error) {
	res, err := c.r(ctx).
		SetResult(&models.Agent{}).
		Get(agentsMe)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch agent: %w", err)
	}

	return res.Result().(*models.Agent), nil
}

func (c *Client) UpdateAgent(ctx context.Context, update models.AgentUpdate) (*models.Agent, error) {
	res, err := c.r(ctx).
		SetBody(update).
		SetResult(&models.Agent{}).
		Put(agentsMe)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}

	return res.Result().(*models.Agent), nil
}

func (c *Client) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	res, err := c.r(ctx).
		SetResult(&models.Dashboard{}).
		Get(agentsDashboard)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard: %w", err)
	}

	return res.Result().(*models.Dashboard), nil
}

// GenerateContent asks the agent to write a post. Depending on the agent's
// autonomy the post comes back as a draft or already published.
func (c *Client) GenerateContent(ctx context.Context) (*models.Post, error) {
	res, err := c.r(ctx).
		SetResult(&models.Post{}).
		Post(agentsGenerate)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	return res.Result().(*models.Post), nil
}

// ApproveAction approves a pending agent action and returns the post it published.
func (c *Client) ApproveAction(ctx context.Context, actionID int64) (*models.Post, error) {
	res, err := c.r(ctx).
		SetResult(&models.Post{}).
		Post(fmt.Sprintf(agentsAction, actionID, "approve"))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to approve action %d: %w", actionID, err)
	}

	return res.Result().(*models.Post), nil
}

func (c *Client) RejectAction(ctx context.Context, actionID int64) error {
	res, err := c.r(ctx).Post(fmt.Sprintf(agentsAction, actionID, "reject"))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to reject action %d: %w", actionID, err)
	}
	return nil
}
