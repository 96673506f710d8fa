package api

import (
	"context"
	"fmt"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	postLike          = "/api/posts/%d/like"
	postLikeStatus    = "/api/posts/%d/like/status"
	postComments      = "/api/posts/%d/comments"
	commentOne        = "/api/comments/%d"
	commentLike       = "/api/comments/%d/like"
	commentLikeStatus = "/api/comments/%d/like/status"
)

func (c *Client) like(ctx context.Context, path string) (*models.Interaction, error) {
	res, err := c.r(ctx).
		SetResult(&models.Interaction{}).
		Post(path)
	if err := check(res, err); err != nil {
		return nil, err
	}
	return res.Result().(*models.Interaction), nil
}

func (c *Client) likeStatus(ctx context.Context, path string) (bool, error) {
	res, err := c.r(ctx).
		SetResult(&models.LikeStatus{}).
		Get(path)
	if err := check(res, err); err != nil {
		return false, err
	}
	return res.Result().(*models.LikeStatus).IsLiked, nil
}

func (c *Client) LikePost(ctx context.Context, postID int64) (*models.Interaction, error) {
	like, err := c.like(ctx, fmt.Sprintf(postLike, postID))
	if err != nil {
		return nil, fmt.Errorf("failed to like post %d: %w", postID, err)
	}
	return like, nil
}

func (c *Client) UnlikePost(ctx context.Context, postID int64) error {
	res, err := c.r(ctx).Delete(fmt.Sprintf(postLike, postID))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to unlike post %d: %w", postID, err)
	}
	return nil
}

func (c *Client) PostLikeStatus(ctx context.Context, postID int64) (bool, error) {
	liked, err := c.likeStatus(ctx, fmt.Sprintf(postLikeStatus, postID))
	if err != nil {
		return false, fmt.Errorf("failed to check like status of post %d: %w", postID, err)
	}
	return liked, nil
}

func (c *Client) CommentOnPost(ctx context.Context, postID int64, content string) (*models.Interaction, error) {
	res, err := c.r(ctx).
		SetBody(models.CommentBody{Content: content}).
		SetResult(&models.Interaction{}).
		Post(fmt.Sprintf(postComments, postID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to comment on post %d: %w", postID, err)
	}

	return res.Result().(*models.Interaction), nil
}

func (c *Client) Comments(ctx context.Context, postID int64) ([]models.Interaction, error) {
	res, err := c.r(ctx).
		SetResult(&[]models.Interaction{}).
		Get(fmt.Sprintf(postComments, postID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch comments of post %d: %w", postID, err)
	}

	return *res.Result().(*[]models.Interaction), nil
}

func (c *Client) UpdateComment(ctx context.Context, commentID int64, content string) (*models.Interaction, error) {
	res, err := c.r(ctx).
		SetBody(models.CommentBody{Content: content}).
		SetResult(&models.Interaction{}).
		Put(fmt.Sprintf(commentOne, commentID))
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to update comment %d: %w", commentID, err)
	}

	return res.Result().(*models.Interaction), nil
}

func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	res, err := c.r(ctx).Delete(fmt.Sprintf(commentOne, commentID))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to delete comment %d: %w", commentID, err)
	}
	return nil
}

func (c *Client) LikeComment(ctx context.Context, commentID int64) (*models.Interaction, error) {
	like, err := c.like(ctx, fmt.Sprintf(commentLike, commentID))
	if err != nil {
		return nil, fmt.Errorf("failed to like comment %d: %w", commentID, err)
	}
	return like, nil
}

func (c *Client) UnlikeComment(ctx context.Context, commentID int64) error {
	res, err := c.r(ctx).Delete(fmt.Sprintf(commentLike, commentID))
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to unlike comment %d: %w", commentID, err)
	}
	return nil
}

func (c *Client) CommentLikeStatus(ctx context.Context, commentID int64) (bool, error) {
	liked, err := c.likeStatus(ctx, fmt.Sprintf(commentLikeStatus, commentID))
	if err != nil {
		return false, fmt.Errorf("failed to check like status of comment %d: %w", commentID, err)
	}
	return liked, nil
}
