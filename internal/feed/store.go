// Package feed keeps a local, ordered list of posts consistent with the
// server while the user likes, comments, edits and moderates them.
//
// Two kinds of update exist: ApplyLocalDelta patches the one counter or flag
// an action owns, and Reconcile replaces a single post with the server's
// copy. Nothing here ever re-sorts the list; order is whatever the server
// returned, with locally created posts prepended.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

var (
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrUnknownPost  = errors.New("post is not in this feed")
)

// Backend is the slice of the API a feed needs.
type Backend interface {
	Feed(ctx context.Context, page api.Page) ([]models.Post, error)
	GlobalFeed(ctx context.Context, page api.Page) ([]models.Post, error)
	Posts(ctx context.Context, page api.Page) ([]models.Post, error)
	UserPosts(ctx context.Context, userID int64, page api.Page) ([]models.Post, error)

	CreatePost(ctx context.Context, content string) (*models.Post, error)
	Post(ctx context.Context, postID int64) (*models.Post, error)
	UpdatePost(ctx context.Context, postID int64, update models.PostUpdate) (*models.Post, error)
	DeletePost(ctx context.Context, postID int64) error
	GenerateContent(ctx context.Context) (*models.Post, error)

	LikePost(ctx context.Context, postID int64) (*models.Interaction, error)
	UnlikePost(ctx context.Context, postID int64) error
	PostLikeStatus(ctx context.Context, postID int64) (bool, error)

	CommentOnPost(ctx context.Context, postID int64, content string) (*models.Interaction, error)
	Comments(ctx context.Context, postID int64) ([]models.Interaction, error)
	UpdateComment(ctx context.Context, commentID int64, content string) (*models.Interaction, error)
	DeleteComment(ctx context.Context, commentID int64) error
	LikeComment(ctx context.Context, commentID int64) (*models.Interaction, error)
	UnlikeComment(ctx context.Context, commentID int64) error
	CommentLikeStatus(ctx context.Context, commentID int64) (bool, error)
}

type SourceKind string

const (
	SourcePersonal SourceKind = "personal"
	SourceGlobal   SourceKind = "global"
	SourceMine     SourceKind = "mine"
	SourceUser     SourceKind = "user"
)

// Source says which list endpoint a Store mirrors.
type Source struct {
	Kind   SourceKind
	UserID int64
}

func (s Source) fetch(ctx context.Context, b Backend, page api.Page) ([]models.Post, error) {
	switch s.Kind {
	case SourceGlobal:
		return b.GlobalFeed(ctx, page)
	case SourceMine:
		return b.Posts(ctx, page)
	case SourceUser:
		return b.UserPosts(ctx, s.UserID, page)
	default:
		return b.Feed(ctx, page)
	}
}

type State int

const (
	StateLoading State = iota
	StateEmpty
	StateFailed
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFailed:
		return "failed"
	case StateReady:
		return "ready"
	default:
		return "loading"
	}
}

const hydrateWorkers = 4

type Store struct {
	backend Backend
	source  Source
	guard   *inflight.Guard

	mu       sync.Mutex
	posts    []models.Post
	next     api.Page
	loaded   bool
	err      error
	comments map[int64][]models.Interaction
}

type Option func(*Store)

// WithGuard shares guard between stores, so a post shown in several feeds
// has one pending mutation at a time.
func WithGuard(guard *inflight.Guard) Option {
	return func(s *Store) {
		s.guard = guard
	}
}

func NewStore(backend Backend, source Source, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		source:   source,
		guard:    inflight.NewGuard(),
		next:     api.FirstPage,
		comments: make(map[int64][]models.Interaction),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Source() Source {
	return s.source
}

// Load fetches the first page and replaces the local list.
func (s *Store) Load(ctx context.Context) error {
	posts, err := s.source.fetch(ctx, s.backend, api.FirstPage)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return fmt.Errorf("failed to load %s feed: %w", s.source.Kind, err)
	}

	posts = s.hydrate(ctx, posts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = posts
	s.next = api.FirstPage.Next()
	s.loaded = true
	s.err = nil
	return nil
}

// More appends the next page. Posts already present are skipped. It reports
// how many posts were added.
func (s *Store) More(ctx context.Context) (int, error) {
	s.mu.Lock()
	page := s.next
	s.mu.Unlock()

	posts, err := s.source.fetch(ctx, s.backend, page)
	if err != nil {
		return 0, fmt.Errorf("failed to load more posts: %w", err)
	}
	posts = s.hydrate(ctx, posts)

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := lo.Filter(posts, func(p models.Post, _ int) bool {
		return s.indexOf(p.ID) < 0
	})
	s.posts = append(s.posts, fresh...)
	s.next = page.Next()
	return len(fresh), nil
}

// hydrate fills IsLiked. Like status is best effort: a failed lookup leaves
// the post unliked.
func (s *Store) hydrate(ctx context.Context, posts []models.Post) []models.Post {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateWorkers)

	for i := range posts {
		i := i
		g.Go(func() error {
			liked, err := s.backend.PostLikeStatus(gctx, posts[i].ID)
			if err == nil {
				posts[i].IsLiked = liked
			}
			return nil
		})
	}
	g.Wait()

	return posts
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.err != nil:
		return StateFailed
	case !s.loaded:
		return StateLoading
	case len(s.posts) == 0:
		return StateEmpty
	default:
		return StateReady
	}
}

// Err is the failure of the last load, to be shown next to a retry action.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Post(nil), s.posts...)
}

func (s *Store) Get(postID int64) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(postID); i >= 0 {
		return s.posts[i], true
	}
	return models.Post{}, false
}

// Drafts are agent posts waiting for their owner's decision.
func (s *Store) Drafts() []models.Post {
	return lo.Filter(s.Posts(), func(p models.Post, _ int) bool {
		return p.IsPendingApproval()
	})
}

func (s *Store) Published() []models.Post {
	return lo.Filter(s.Posts(), func(p models.Post, _ int) bool {
		return p.Status == models.StatusPublished
	})
}

// indexOf must be called with mu held.
func (s *Store) indexOf(postID int64) int {
	_, i, ok := lo.FindIndexOf(s.posts, func(p models.Post) bool {
		return p.ID == postID
	})
	if !ok {
		return -1
	}
	return i
}

func (s *Store) prepend(post models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(post.ID); i >= 0 {
		s.posts = append(s.posts[:i], s.posts[i+1:]...)
	}
	s.posts = append([]models.Post{post}, s.posts...)
	s.loaded = true
}

// replace swaps in the server's copy of a post, keeping client-only state.
func (s *Store) replace(post models.Post) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(post.ID)
	if i < 0 {
		return false
	}
	post.IsLiked = s.posts[i].IsLiked
	s.posts[i] = post
	return true
}

func (s *Store) remove(postID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(postID)
	if i < 0 {
		return false
	}
	s.posts = append(s.posts[:i], s.posts[i+1:]...)
	delete(s.comments, postID)
	return true
}

// Reconcile re-fetches one post and replaces it in place. A post the server
// no longer has is dropped from the list; that is not an error.
func (s *Store) Reconcile(ctx context.Context, postID int64) error {
	post, err := s.backend.Post(ctx, postID)
	if api.IsNotFound(err) {
		s.remove(postID)
		return nil
	}
	if err != nil {
		return err
	}

	s.replace(*post)
	return nil
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// Create publishes a post written by the user and puts it on top of the list.
func (s *Store) Create(ctx context.Context, content string) (*models.Post, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}

	post, err := s.backend.CreatePost(ctx, content)
	if err != nil {
		return nil, err
	}

	s.prepend(*post)
	return post, nil
}

// Generate asks the agent for a post. Whether it arrives as a draft depends
// on the agent's autonomy level.
func (s *Store) Generate(ctx context.Context) (*models.Post, error) {
	release, err := s.guard.Acquire("generate")
	if err != nil {
		return nil, err
	}
	defer release()

	post, err := s.backend.GenerateContent(ctx)
	if err != nil {
		return nil, err
	}

	s.prepend(*post)
	return post, nil
}

// mutatePost runs an update whose answer is the server's new copy of the post.
func (s *Store) mutatePost(ctx context.Context, postID int64, update models.PostUpdate) (*models.Post, error) {
	if _, ok := s.Get(postID); !ok {
		return nil, ErrUnknownPost
	}

	release, err := s.guard.Acquire(inflight.Key("post", postID))
	if err != nil {
		return nil, err
	}
	defer release()

	post, err := s.backend.UpdatePost(ctx, postID, update)
	if err != nil {
		return nil, err
	}

	s.replace(*post)
	return post, nil
}

func (s *Store) Edit(ctx context.Context, postID int64, content string) (*models.Post, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	return s.mutatePost(ctx, postID, models.PostUpdate{Content: &content})
}

// Approve publishes a draft unchanged.
func (s *Store) Approve(ctx context.Context, postID int64) (*models.Post, error) {
	status := models.StatusPublished
	return s.mutatePost(ctx, postID, models.PostUpdate{Status: &status})
}

// EditAndPublish replaces a draft's content and publishes it in one call.
func (s *Store) EditAndPublish(ctx context.Context, postID int64, content string) (*models.Post, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	status := models.StatusPublished
	return s.mutatePost(ctx, postID, models.PostUpdate{Content: &content, Status: &status})
}

func (s *Store) Delete(ctx context.Context, postID int64) error {
	if _, ok := s.Get(postID); !ok {
		return ErrUnknownPost
	}

	release, err := s.guard.Acquire(inflight.Key("post", postID))
	if err != nil {
		return err
	}
	defer release()

	if err := s.backend.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.remove(postID)
	return nil
}

// Reject discards an agent draft.
func (s *Store) Reject(ctx context.Context, postID int64) error {
	return s.Delete(ctx, postID)
}
