package feed

import (
	"context"

	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

// Delta is a local change to the counters and flags of a post.
type Delta int

const (
	DeltaLike Delta = iota + 1
	DeltaUnlike
	DeltaComment
	DeltaUncomment
)

// apply reports whether p changed. Repeating a like or unlike is a no-op and
// counts never drop below zero.
func (d Delta) apply(p *models.Post) bool {
	switch d {
	case DeltaLike:
		if p.IsLiked {
			return false
		}
		p.IsLiked = true
		p.LikeCount++
	case DeltaUnlike:
		if !p.IsLiked {
			return false
		}
		p.IsLiked = false
		p.LikeCount = max(0, p.LikeCount-1)
	case DeltaComment:
		p.CommentCount++
	case DeltaUncomment:
		if p.CommentCount == 0 {
			return false
		}
		p.CommentCount--
	default:
		return false
	}
	return true
}

// ApplyLocalDelta patches one post in place without asking the server. It
// returns the post as it was before, and whether anything changed.
func (s *Store) ApplyLocalDelta(postID int64, d Delta) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(postID)
	if i < 0 {
		return models.Post{}, false
	}

	prev := s.posts[i]
	changed := d.apply(&s.posts[i])
	return prev, changed
}

// rollback restores from prev only the fields d owns.
func (s *Store) rollback(prev models.Post, d Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(prev.ID)
	if i < 0 {
		return
	}

	switch d {
	case DeltaLike, DeltaUnlike:
		s.posts[i].IsLiked = prev.IsLiked
		s.posts[i].LikeCount = prev.LikeCount
	case DeltaComment, DeltaUncomment:
		s.posts[i].CommentCount = prev.CommentCount
	}
}

func (s *Store) toggleLike(ctx context.Context, postID int64, d Delta) error {
	if _, ok := s.Get(postID); !ok {
		return ErrUnknownPost
	}

	release, err := s.guard.Acquire(inflight.Key("like", postID))
	if err != nil {
		return err
	}
	defer release()

	prev, changed := s.ApplyLocalDelta(postID, d)
	if !changed {
		return nil
	}

	if d == DeltaLike {
		_, err = s.backend.LikePost(ctx, postID)
	} else {
		err = s.backend.UnlikePost(ctx, postID)
	}
	if err != nil {
		s.rollback(prev, d)
		return err
	}
	return nil
}

func (s *Store) Like(ctx context.Context, postID int64) error {
	return s.toggleLike(ctx, postID, DeltaLike)
}

func (s *Store) Unlike(ctx context.Context, postID int64) error {
	return s.toggleLike(ctx, postID, DeltaUnlike)
}

// ToggleLike likes an unliked post and unlikes a liked one.
func (s *Store) ToggleLike(ctx context.Context, postID int64) error {
	post, ok := s.Get(postID)
	if !ok {
		return ErrUnknownPost
	}
	if post.IsLiked {
		return s.Unlike(ctx, postID)
	}
	return s.Like(ctx, postID)
}
