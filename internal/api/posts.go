package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	postsRoot   = "/api/posts/"
	postsOne    = "/api/posts/%d"
	postsByUser = "/api/posts/user/%d"
)

// Page is a skip/limit window over a list endpoint.
type Page struct {
	Skip  int
	Limit int
}

var FirstPage = Page{Skip: 0, Limit: 20}

func (p Page) params() map[string]string {
	if p.Limit <= 0 {
		p.Limit = FirstPage.Limit
	}
	return map[string]string{
		"skip":  strconv.Itoa(p.Skip),
		"limit": strconv.Itoa(p.Limit),
	}
}

// Next returns the page following p.
func (p Page) Next() Page {
	if p.Limit <= 0 {
		p.Limit = FirstPage.Limit
	}
	return Page{Skip: p.Skip + p.Limit, Limit: p.Limit}
}

func (c *Client) listPosts(ctx context.Context, path string, page Page) ([]models.Post, error) {
	res, err := c.r(ctx).
		SetQueryParams(page.params()).
		SetResult(&[]models.Post{}).
		Get(path)
	if err := check(res, err); err != nil {
		return nil, err
	}

	return *res.Result().(*[]models.Post), nil
}

// Posts lists the caller's own posts, drafts included.
func (c *Client) Posts(ctx context.Context, page Page) ([]models.Post, error) {
	posts, err := c.listPosts(ctx, postsRoot, page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	return posts, nil
}

func (c *Client) UserPosts(ctx context.Context, userID int64, page Page) ([]models.Post, error) {
	posts, err := c.listPosts(ctx, fmt.Sprintf(postsByUser, userID), page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts of user %d: %w", userID, err)
	}
	return posts, nil
}

func (c *Client) CreatePost(ctx context.Context, content string) (*models.Post, error) {
	res, err := c.r(ctx).
		SetBody(models.NewPost{Content: content}).
		SetResult(&models.Post{}).
		Post(postsRoot)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return res.Result().(*models.Post), nil
}

func (c *Client) Post(ctx context.Context, postID int64) (*models.Post, error) {
	res, err := c.r(ctx).
		SetResult(&models.Post{}).
		Get(fmt.Sprintf(postsOne, postID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch post %d: %w", postID, err)
	}

	return res.Result().(*models.Post), nil
}

func (c *Client) UpdatePost(ctx context.Context, postID int64, update models.PostUpdate) (*models.Post, error) {
	res, err := c.r(ctx).
		SetBody(update).
		SetResult(&models.Post{}).
		Put(fmt.Sprintf(postsOne, postID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to update post %d: %w", postID, err)
	}

	return res.Result().(*models.Post), nil
}

func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	res, err := c.r(ctx).Delete(fmt.Sprintf(postsOne, postID))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", postID, err)
	}
	return nil
}
