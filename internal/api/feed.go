package api

import (
	"context"
	"fmt"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	feedPersonal = "/api/feed/"
	feedGlobal   = "/api/feed/all"
)

// Feed returns the caller's own posts and those of their connections.
func (c *Client) Feed(ctx context.Context, page Page) ([]models.Post, error) {
	posts, err := c.listPosts(ctx, feedPersonal, page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	return posts, nil
}

// GlobalFeed returns every published post.
func (c *Client) GlobalFeed(ctx context.Context, page Page) ([]models.Post, error) {
	posts, err := c.listPosts(ctx, feedGlobal, page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch global feed: %w", err)
	}
	return posts, nil
}
