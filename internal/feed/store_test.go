package feed_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

var errBoom = errors.New("boom")

// fakeBackend serves a fixed post list and records server-side state.
type fakeBackend struct {
	mu       sync.Mutex
	posts    []models.Post
	liked    map[int64]bool
	comments map[int64][]models.Interaction
	nextID   int64
	fail     map[string]error

	started chan struct{}
	block   chan struct{}
}

func newFake(posts ...models.Post) *fakeBackend {
	return &fakeBackend{
		posts:    posts,
		liked:    map[int64]bool{},
		comments: map[int64][]models.Interaction{},
		nextID:   1000,
		fail:     map[string]error{},
	}
}

func (f *fakeBackend) failing(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeBackend) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *fakeBackend) page(page api.Page) ([]models.Post, error) {
	if err := f.err("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if page.Skip >= len(f.posts) {
		return nil, nil
	}
	end := min(len(f.posts), page.Skip+page.Limit)
	return append([]models.Post(nil), f.posts[page.Skip:end]...), nil
}

func (f *fakeBackend) Feed(_ context.Context, page api.Page) ([]models.Post, error) {
	return f.page(page)
}

func (f *fakeBackend) GlobalFeed(_ context.Context, page api.Page) ([]models.Post, error) {
	return f.page(page)
}

func (f *fakeBackend) Posts(_ context.Context, page api.Page) ([]models.Post, error) {
	return f.page(page)
}

func (f *fakeBackend) UserPosts(_ context.Context, _ int64, page api.Page) ([]models.Post, error) {
	return f.page(page)
}

func (f *fakeBackend) CreatePost(_ context.Context, content string) (*models.Post, error) {
	if err := f.err("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := models.Post{ID: f.nextID, Content: content, PostType: models.PostTypeHuman, Status: models.StatusPublished}
	return &p, nil
}

func (f *fakeBackend) Post(_ context.Context, postID int64) (*models.Post, error) {
	if err := f.err("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := lo.Find(f.posts, func(p models.Post) bool { return p.ID == postID })
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusNotFound, Detail: "Post not found"}
	}
	return &p, nil
}

func (f *fakeBackend) UpdatePost(_ context.Context, postID int64, update models.PostUpdate) (*models.Post, error) {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}
	if err := f.err("update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].ID != postID {
			continue
		}
		if update.Content != nil {
			f.posts[i].Content = *update.Content
			f.posts[i].IsEdited = true
			f.posts[i].EditedByUser = true
		}
		if update.Status != nil {
			f.posts[i].Status = *update.Status
		}
		p := f.posts[i]
		return &p, nil
	}
	return nil, &api.Error{StatusCode: http.StatusNotFound}
}

func (f *fakeBackend) DeletePost(_ context.Context, postID int64) error {
	if err := f.err("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = lo.Reject(f.posts, func(p models.Post, _ int) bool { return p.ID == postID })
	return nil
}

func (f *fakeBackend) GenerateContent(context.Context) (*models.Post, error) {
	if err := f.err("generate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := models.Post{ID: f.nextID, Content: "generated", PostType: models.PostTypeAgent, Status: models.StatusDraft}
	f.posts = append(f.posts, p)
	return &p, nil
}

func (f *fakeBackend) LikePost(_ context.Context, postID int64) (*models.Interaction, error) {
	if err := f.err("like"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked[postID] = true
	return &models.Interaction{ID: postID, InteractionType: models.InteractionLike}, nil
}

func (f *fakeBackend) UnlikePost(_ context.Context, postID int64) error {
	if err := f.err("unlike"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.liked, postID)
	return nil
}

func (f *fakeBackend) PostLikeStatus(_ context.Context, postID int64) (bool, error) {
	if err := f.err("likestatus"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liked[postID], nil
}

func (f *fakeBackend) CommentOnPost(_ context.Context, postID int64, content string) (*models.Interaction, error) {
	if err := f.err("comment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := models.Interaction{ID: f.nextID, PostID: &postID, InteractionType: models.InteractionComment, Content: &content}
	f.comments[postID] = append(f.comments[postID], c)
	return &c, nil
}

func (f *fakeBackend) Comments(_ context.Context, postID int64) ([]models.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Interaction(nil), f.comments[postID]...), nil
}

func (f *fakeBackend) UpdateComment(_ context.Context, commentID int64, content string) (*models.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for postID, list := range f.comments {
		for i := range list {
			if list[i].ID == commentID {
				list[i].Content = &content
				list[i].IsEdited = true
				f.comments[postID] = list
				c := list[i]
				return &c, nil
			}
		}
	}
	return nil, &api.Error{StatusCode: http.StatusNotFound}
}

func (f *fakeBackend) DeleteComment(_ context.Context, commentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for postID, list := range f.comments {
		f.comments[postID] = lo.Reject(list, func(c models.Interaction, _ int) bool { return c.ID == commentID })
	}
	return nil
}

func (f *fakeBackend) LikeComment(_ context.Context, commentID int64) (*models.Interaction, error) {
	if err := f.err("likecomment"); err != nil {
		return nil, err
	}
	return &models.Interaction{ID: commentID}, nil
}

func (f *fakeBackend) UnlikeComment(context.Context, int64) error {
	return f.err("unlikecomment")
}

func (f *fakeBackend) CommentLikeStatus(context.Context, int64) (bool, error) {
	return false, nil
}

func post(id int64, likes, comments int) models.Post {
	return models.Post{
		ID:           id,
		Content:      "post",
		PostType:     models.PostTypeHuman,
		Status:       models.StatusPublished,
		LikeCount:    likes,
		CommentCount: comments,
	}
}

func draft(id int64) models.Post {
	return models.Post{ID: id, Content: "draft", PostType: models.PostTypeAgent, Status: models.StatusDraft}
}

func ids(posts []models.Post) []int64 {
	return lo.Map(posts, func(p models.Post, _ int) int64 { return p.ID })
}

func loaded(t *testing.T, backend *fakeBackend) *feed.Store {
	t.Helper()
	store := feed.NewStore(backend, feed.Source{Kind: feed.SourcePersonal})
	require.NoError(t, store.Load(context.Background()))
	return store
}

func TestLikeUnlike(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := loaded(t, newFake(post(1, 3, 0), post(2, 0, 0)))

	require.NoError(t, store.Like(ctx, 1))
	p, _ := store.Get(1)
	require.True(t, p.IsLiked)
	require.Equal(t, 4, p.LikeCount)

	require.NoError(t, store.Like(ctx, 1))
	p, _ = store.Get(1)
	require.Equal(t, 4, p.LikeCount)

	require.NoError(t, store.ToggleLike(ctx, 1))
	p, _ = store.Get(1)
	require.False(t, p.IsLiked)
	require.Equal(t, 3, p.LikeCount)

	require.NoError(t, store.Unlike(ctx, 1))
	p, _ = store.Get(1)
	require.Equal(t, 3, p.LikeCount)

	require.ErrorIs(t, store.Like(ctx, 99), feed.ErrUnknownPost)
}

func TestLikeHydratedFromServer(t *testing.T) {
	t.Parallel()

	backend := newFake(post(1, 1, 0), post(2, 0, 0))
	backend.liked[1] = true
	store := loaded(t, backend)

	p, _ := store.Get(1)
	require.True(t, p.IsLiked)
	p, _ = store.Get(2)
	require.False(t, p.IsLiked)
}

func TestLikeRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(post(1, 3, 2))
	store := loaded(t, backend)
	backend.failing("like", errBoom)

	require.ErrorIs(t, store.Like(ctx, 1), errBoom)

	p, _ := store.Get(1)
	require.False(t, p.IsLiked)
	require.Equal(t, 3, p.LikeCount)
	require.Equal(t, 2, p.CommentCount)
}

func TestApplyLocalDelta(t *testing.T) {
	t.Parallel()

	store := loaded(t, newFake(post(1, 0, 1), post(2, 5, 5)))

	_, changed := store.ApplyLocalDelta(1, feed.DeltaUnlike)
	require.False(t, changed)

	_, changed = store.ApplyLocalDelta(1, feed.DeltaComment)
	require.True(t, changed)
	_, changed = store.ApplyLocalDelta(1, feed.DeltaUncomment)
	require.True(t, changed)
	_, changed = store.ApplyLocalDelta(1, feed.DeltaUncomment)
	require.True(t, changed)
	_, changed = store.ApplyLocalDelta(1, feed.DeltaUncomment)
	require.False(t, changed)

	p, _ := store.Get(1)
	require.Equal(t, 0, p.CommentCount)
	require.Equal(t, 0, p.LikeCount)

	other, _ := store.Get(2)
	require.Equal(t, post(2, 5, 5), other)

	_, changed = store.ApplyLocalDelta(99, feed.DeltaLike)
	require.False(t, changed)
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(post(1, 0, 0), post(2, 0, 0), post(3, 0, 0))
	store := loaded(t, backend)
	require.NoError(t, store.Like(ctx, 2))

	backend.mu.Lock()
	backend.posts[1].Content = "edited elsewhere"
	backend.posts[1].LikeCount = 7
	backend.posts = lo.Reject(backend.posts, func(p models.Post, _ int) bool { return p.ID == 3 })
	backend.mu.Unlock()

	require.NoError(t, store.Reconcile(ctx, 2))
	p, _ := store.Get(2)
	require.Equal(t, "edited elsewhere", p.Content)
	require.Equal(t, 7, p.LikeCount)
	require.True(t, p.IsLiked)

	require.NoError(t, store.Reconcile(ctx, 3))
	require.Equal(t, []int64{1, 2}, ids(store.Posts()))

	backend.failing("get", errBoom)
	require.ErrorIs(t, store.Reconcile(ctx, 1), errBoom)
	require.Equal(t, []int64{1, 2}, ids(store.Posts()))
}

func TestCreatePrepends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := loaded(t, newFake(post(1, 2, 1), post(2, 4, 0)))
	before := store.Posts()

	created, err := store.Create(ctx, "  hello  ")
	require.NoError(t, err)
	require.Equal(t, "hello", created.Content)

	posts := store.Posts()
	require.Equal(t, []int64{created.ID, 1, 2}, ids(posts))
	require.Equal(t, before, posts[1:])

	_, err = store.Create(ctx, "   ")
	require.ErrorIs(t, err, feed.ErrEmptyContent)
	require.Len(t, store.Posts(), 3)
}

func TestDraftModeration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(draft(1), draft(2), draft(3), post(4, 0, 0))
	store := feed.NewStore(backend, feed.Source{Kind: feed.SourceMine})
	require.NoError(t, store.Load(ctx))
	require.Equal(t, []int64{1, 2, 3}, ids(store.Drafts()))

	approved, err := store.Approve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, approved.Status)
	require.Equal(t, "draft", approved.Content)

	published, err := store.EditAndPublish(ctx, 2, "better words")
	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, published.Status)
	require.True(t, published.EditedByUser)

	require.NoError(t, store.Reject(ctx, 3))

	require.Empty(t, store.Drafts())
	require.Equal(t, []int64{1, 2, 4}, ids(store.Published()))
	require.Equal(t, []int64{1, 2, 4}, ids(store.Posts()))

	_, err = store.Approve(ctx, 3)
	require.ErrorIs(t, err, feed.ErrUnknownPost)
}

func TestGeneratePrependsDraft(t *testing.T) {
	t.Parallel()

	store := loaded(t, newFake(post(1, 0, 0)))

	generated, err := store.Generate(context.Background())
	require.NoError(t, err)
	require.True(t, generated.IsPendingApproval())
	require.Equal(t, []int64{generated.ID, 1}, ids(store.Posts()))
	require.Len(t, store.Drafts(), 1)
}

func TestLoadStates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	empty := feed.NewStore(newFake(), feed.Source{Kind: feed.SourceGlobal})
	require.Equal(t, feed.StateLoading, empty.State())
	require.NoError(t, empty.Load(ctx))
	require.Equal(t, feed.StateEmpty, empty.State())

	backend := newFake(post(1, 0, 0))
	backend.failing("list", errBoom)
	failed := feed.NewStore(backend, feed.Source{Kind: feed.SourceGlobal})
	require.ErrorIs(t, failed.Load(ctx), errBoom)
	require.Equal(t, feed.StateFailed, failed.State())
	require.ErrorIs(t, failed.Err(), errBoom)

	backend.failing("list", nil)
	require.NoError(t, failed.Load(ctx))
	require.Equal(t, feed.StateReady, failed.State())
	require.NoError(t, failed.Err())
}

func TestLikeStatusFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	backend := newFake(post(1, 0, 0))
	backend.failing("likestatus", errBoom)
	store := loaded(t, backend)

	p, ok := store.Get(1)
	require.True(t, ok)
	require.False(t, p.IsLiked)
}

func TestMoreSkipsKnownPosts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	posts := make([]models.Post, 0, 25)
	for i := int64(1); i <= 25; i++ {
		posts = append(posts, post(i, 0, 0))
	}
	backend := newFake(posts...)
	store := loaded(t, backend)
	require.Len(t, store.Posts(), 20)

	_, err := store.Create(ctx, "fresh")
	require.NoError(t, err)

	backend.mu.Lock()
	backend.posts = append(backend.posts[:20], append([]models.Post{post(3, 0, 0)}, backend.posts[20:]...)...)
	backend.mu.Unlock()

	added, err := store.More(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, added)
	require.Len(t, store.Posts(), 26)

	added, err = store.More(ctx)
	require.NoError(t, err)
	require.Zero(t, added)
}

func TestDuplicateMutationIsRefused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(draft(1), draft(2))
	store := loaded(t, backend)
	backend.started = make(chan struct{})
	backend.block = make(chan struct{})

	done := make(chan error)
	go func() {
		_, err := store.Approve(ctx, 1)
		done <- err
	}()

	select {
	case <-backend.started:
	case <-time.After(time.Second):
		t.Fatal("approve never reached the backend")
	}

	_, err := store.Approve(ctx, 1)
	require.ErrorIs(t, err, inflight.ErrInFlight)
	require.ErrorIs(t, store.Delete(ctx, 1), inflight.ErrInFlight)

	close(backend.block)
	require.NoError(t, <-done)

	p, _ := store.Get(1)
	require.Equal(t, models.StatusPublished, p.Status)
}

func TestComments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(post(1, 0, 0), post(2, 0, 0))
	store := loaded(t, backend)

	_, err := store.Comments(ctx, 1)
	require.NoError(t, err)

	c, err := store.AddComment(ctx, 1, "nice")
	require.NoError(t, err)
	require.Equal(t, "nice", c.Text())
	require.Len(t, store.CachedComments(1), 1)

	p, _ := store.Get(1)
	require.Equal(t, 1, p.CommentCount)

	_, err = store.AddComment(ctx, 1, "  ")
	require.ErrorIs(t, err, feed.ErrEmptyContent)

	edited, err := store.EditComment(ctx, 1, c.ID, "nicer")
	require.NoError(t, err)
	require.True(t, edited.IsEdited)
	require.Equal(t, "nicer", store.CachedComments(1)[0].Text())

	require.NoError(t, store.LikeComment(ctx, 1, c.ID))
	require.Equal(t, 1, store.CachedComments(1)[0].LikeCount)

	backend.failing("unlikecomment", errBoom)
	require.ErrorIs(t, store.UnlikeComment(ctx, 1, c.ID), errBoom)
	require.True(t, store.CachedComments(1)[0].IsLiked)
	require.Equal(t, 1, store.CachedComments(1)[0].LikeCount)

	require.NoError(t, store.DeleteComment(ctx, 1, c.ID))
	require.Empty(t, store.CachedComments(1))
	p, _ = store.Get(1)
	require.Equal(t, 0, p.CommentCount)

	require.ErrorIs(t, store.LikeComment(ctx, 1, c.ID), feed.ErrUnknownComment)

	other, _ := store.Get(2)
	require.Equal(t, post(2, 0, 0), other)
}

func TestSharedGuardSpansFeeds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(draft(1))
	guard := inflight.NewGuard()

	personal := feed.NewStore(backend, feed.Source{Kind: feed.SourcePersonal}, feed.WithGuard(guard))
	mine := feed.NewStore(backend, feed.Source{Kind: feed.SourceMine}, feed.WithGuard(guard))
	require.NoError(t, personal.Load(ctx))
	require.NoError(t, mine.Load(ctx))

	backend.started = make(chan struct{})
	backend.block = make(chan struct{})

	done := make(chan error)
	go func() {
		_, err := personal.Approve(ctx, 1)
		done <- err
	}()

	select {
	case <-backend.started:
	case <-time.After(time.Second):
		t.Fatal("approve never reached the backend")
	}

	_, err := mine.Approve(ctx, 1)
	require.ErrorIs(t, err, inflight.ErrInFlight)

	close(backend.block)
	require.NoError(t, <-done)
}

func TestDeleteCommentOfUnloadedThread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake(post(1, 0, 2))
	store := loaded(t, backend)

	first, err := backend.CommentOnPost(ctx, 1, "first")
	require.NoError(t, err)
	_, err = backend.CommentOnPost(ctx, 1, "second")
	require.NoError(t, err)

	require.NoError(t, store.DeleteComment(ctx, 1, first.ID))
	require.Empty(t, store.CachedComments(1))

	_, err = store.AddComment(ctx, 1, "third")
	require.NoError(t, err)
	require.Empty(t, store.CachedComments(1))

	comments, err := store.Comments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 2)
}
