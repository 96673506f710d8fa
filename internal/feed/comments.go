package feed

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

var ErrUnknownComment = errors.New("comment is not loaded")

// Comments fetches the comment thread of a post and caches it.
func (s *Store) Comments(ctx context.Context, postID int64) ([]models.Interaction, error) {
	comments, err := s.backend.Comments(ctx, postID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateWorkers)
	for i := range comments {
		i := i
		g.Go(func() error {
			if liked, err := s.backend.CommentLikeStatus(gctx, comments[i].ID); err == nil {
				comments[i].IsLiked = liked
			}
			return nil
		})
	}
	g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments[postID] = comments
	return append([]models.Interaction(nil), comments...), nil
}

// CachedComments returns the thread loaded by the last Comments call.
func (s *Store) CachedComments(postID int64) []models.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Interaction(nil), s.comments[postID]...)
}

// updateComment applies fn to a cached comment under the lock and returns
// the comment as it was before.
func (s *Store) updateComment(postID, commentID int64, fn func(*models.Interaction)) (models.Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, ok := lo.FindIndexOf(s.comments[postID], func(c models.Interaction) bool {
		return c.ID == commentID
	})
	if !ok {
		return models.Interaction{}, false
	}

	prev := s.comments[postID][i]
	fn(&s.comments[postID][i])
	return prev, true
}

func (s *Store) AddComment(ctx context.Context, postID int64, content string) (*models.Interaction, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(inflight.Key("comment-on", postID))
	if err != nil {
		return nil, err
	}
	defer release()

	comment, err := s.backend.CommentOnPost(ctx, postID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, cached := s.comments[postID]; cached {
		s.comments[postID] = append(s.comments[postID], *comment)
	}
	s.mu.Unlock()

	s.ApplyLocalDelta(postID, DeltaComment)
	return comment, nil
}

func (s *Store) EditComment(ctx context.Context, postID, commentID int64, content string) (*models.Interaction, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(inflight.Key("comment", commentID))
	if err != nil {
		return nil, err
	}
	defer release()

	updated, err := s.backend.UpdateComment(ctx, commentID, content)
	if err != nil {
		return nil, err
	}

	s.updateComment(postID, commentID, func(c *models.Interaction) {
		liked := c.IsLiked
		*c = *updated
		c.IsLiked = liked
	})
	return updated, nil
}

func (s *Store) DeleteComment(ctx context.Context, postID, commentID int64) error {
	release, err := s.guard.Acquire(inflight.Key("comment", commentID))
	if err != nil {
		return err
	}
	defer release()

	if err := s.backend.DeleteComment(ctx, commentID); err != nil {
		return err
	}

	s.mu.Lock()
	if cached, ok := s.comments[postID]; ok {
		s.comments[postID] = lo.Reject(cached, func(c models.Interaction, _ int) bool {
			return c.ID == commentID
		})
	}
	s.mu.Unlock()

	s.ApplyLocalDelta(postID, DeltaUncomment)
	return nil
}

func (s *Store) toggleCommentLike(ctx context.Context, postID, commentID int64, like bool) error {
	release, err := s.guard.Acquire(inflight.Key("comment-like", commentID))
	if err != nil {
		return err
	}
	defer release()

	changed := false
	prev, ok := s.updateComment(postID, commentID, func(c *models.Interaction) {
		if c.IsLiked == like {
			return
		}
		changed = true
		c.IsLiked = like
		if like {
			c.LikeCount++
		} else {
			c.LikeCount = max(0, c.LikeCount-1)
		}
	})
	if !ok {
		return ErrUnknownComment
	}
	if !changed {
		return nil
	}

	if like {
		_, err = s.backend.LikeComment(ctx, commentID)
	} else {
		err = s.backend.UnlikeComment(ctx, commentID)
	}
	if err != nil {
		s.updateComment(postID, commentID, func(c *models.Interaction) {
			c.IsLiked = prev.IsLiked
			c.LikeCount = prev.LikeCount
		})
		return err
	}
	return nil
}

func (s *Store) LikeComment(ctx context.Context, postID, commentID int64) error {
	return s.toggleCommentLike(ctx, postID, commentID, true)
}

func (s *Store) UnlikeComment(ctx context.Context, postID, commentID int64) error {
	return s.toggleCommentLike(ctx, postID, commentID, false)
}
