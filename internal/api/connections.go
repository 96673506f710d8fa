package api

import (
	"context"
	"fmt"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	connectionsRoot   = "/api/connections/"
	connectionsCreate = "/api/connections/%d"
	connectionsAction = "/api/connections/%d/%s"
)

// Connections lists the caller's connections. An empty status returns all of them.
func (c *Client) Connections(ctx context.Context, status models.ConnectionStatus) ([]models.Connection, error) {
	req := c.r(ctx).SetResult(&[]models.Connection{})
	if status != "" {
		req.SetQueryParam("status_filter", string(status))
	}

	res, err := req.Get(connectionsRoot)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch connections: %w", err)
	}

	return *res.Result().(*[]models.Connection), nil
}

// RequestConnection sends a connection request to userID.
func (c *Client) RequestConnection(ctx context.Context, userID int64) (*models.Connection, error) {
	res, err := c.r(ctx).
		SetResult(&models.Connection{}).
		Post(fmt.Sprintf(connectionsCreate, userID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to request connection with user %d: %w", userID, err)
	}

	return res.Result().(*models.Connection), nil
}

func (c *Client) respond(ctx context.Context, connectionID int64, verb string) (*models.Connection, error) {
	res, err := c.r(ctx).
		SetResult(&models.Connection{}).
		Put(fmt.Sprintf(connectionsAction, connectionID, verb))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to %s connection %d: %w", verb, connectionID, err)
	}

	return res.Result().(*models.Connection), nil
}

func (c *Client) AcceptConnection(ctx context.Context, connectionID int64) (*models.Connection, error) {
	return c.respond(ctx, connectionID, "accept")
}

func (c *Client) RejectConnection(ctx context.Context, connectionID int64) (*models.Connection, error) {
	return c.respond(ctx, connectionID, "reject")
}

func (c *Client) RemoveConnection(ctx context.Context, connectionID int64) error {
	res, err := c.r(ctx).Delete(fmt.Sprintf(connectionsCreate, connectionID))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to remove connection %d: %w", connectionID, err)
	}
	return nil
}
