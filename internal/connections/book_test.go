package connections_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/pairpost/internal/connections"
	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

var errBoom = errors.New("boom")

// fakeBackend keeps a connection table and answers like the real API would.
type fakeBackend struct {
	mu     sync.Mutex
	me     int64
	users  []models.User
	conns  []models.Connection
	nextID int64
	fail   error

	started chan struct{}
	block   chan struct{}
}

func (f *fakeBackend) Users(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, f.fail
}

func (f *fakeBackend) Connections(_ context.Context, status models.ConnectionStatus) ([]models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return lo.Filter(f.conns, func(c models.Connection, _ int) bool {
		return status == "" || c.Status == status
	}), nil
}

func (f *fakeBackend) RequestConnection(_ context.Context, userID int64) (*models.Connection, error) {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := conn(100+f.nextID, f.me, userID, models.ConnectionPending)
	f.conns = append(f.conns, c)
	return &c, nil
}

func (f *fakeBackend) setStatus(id int64, status models.ConnectionStatus) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.conns {
		if f.conns[i].ID == id {
			f.conns[i].Status = status
			c := f.conns[i]
			return &c, nil
		}
	}
	return nil, errBoom
}

func (f *fakeBackend) AcceptConnection(_ context.Context, id int64) (*models.Connection, error) {
	return f.setStatus(id, models.ConnectionAccepted)
}

func (f *fakeBackend) RejectConnection(_ context.Context, id int64) (*models.Connection, error) {
	return f.setStatus(id, models.ConnectionRejected)
}

func (f *fakeBackend) RemoveConnection(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = lo.Reject(f.conns, func(c models.Connection, _ int) bool { return c.ID == id })
	return nil
}

func newFake() *fakeBackend {
	return &fakeBackend{
		me: 1,
		users: []models.User{
			{ID: 1, FullName: "Me"},
			{ID: 2, FullName: "Bo"},
			{ID: 3, FullName: "Cy"},
			{ID: 4, FullName: "Di"},
		},
		conns: []models.Connection{
			conn(1, 1, 3, models.ConnectionAccepted),
			conn(2, 4, 1, models.ConnectionPending),
		},
	}
}

func statuses(entries []connections.Entry) map[int64]connections.Status {
	return lo.SliceToMap(entries, func(e connections.Entry) (int64, connections.Status) {
		return e.User.ID, e.Status
	})
}

func TestBookBrowse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake()
	book := connections.NewBook(backend, 1)

	require.NoError(t, book.Load(ctx, connections.TabBrowse))

	entries := book.Browse()
	require.Len(t, entries, 3)
	require.Equal(t, map[int64]connections.Status{
		2: connections.StatusNone,
		3: connections.StatusConnected,
		4: connections.StatusPendingIn,
	}, statuses(entries))

	require.NoError(t, book.Connect(ctx, 2))
	require.Equal(t, connections.StatusPendingOut, book.Status(2))

	require.NoError(t, book.Accept(ctx, 2))
	require.Equal(t, connections.StatusConnected, book.Status(4))

	require.NoError(t, book.Remove(ctx, 1))
	require.Equal(t, connections.StatusNone, book.Status(3))
}

func TestBookTabs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake()
	backend.conns = append(backend.conns, conn(3, 1, 2, models.ConnectionPending))
	book := connections.NewBook(backend, 1)

	require.NoError(t, book.Load(ctx, connections.TabPending))
	require.Equal(t, connections.TabPending, book.Tab())
	require.Len(t, book.Listed(), 2)
	require.Equal(t, []int64{2}, lo.Map(book.Incoming(), func(c models.Connection, _ int) int64 { return c.ID }))
	require.Equal(t, []int64{3}, lo.Map(book.Outgoing(), func(c models.Connection, _ int) int64 { return c.ID }))

	require.NoError(t, book.Reject(ctx, 2))
	require.Len(t, book.Listed(), 1)

	require.NoError(t, book.Load(ctx, connections.TabAccepted))
	require.Len(t, book.Listed(), 1)
	require.Equal(t, int64(1), book.Listed()[0].ID)
}

func TestBookLoadFailure(t *testing.T) {
	t.Parallel()

	backend := newFake()
	backend.fail = errBoom
	book := connections.NewBook(backend, 1)

	err := book.Load(context.Background(), connections.TabBrowse)
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, book.Err(), errBoom)

	backend.mu.Lock()
	backend.fail = nil
	backend.mu.Unlock()

	require.NoError(t, book.Load(context.Background(), connections.TabBrowse))
	require.NoError(t, book.Err())
}

func TestBookGuardsDuplicateConnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFake()
	backend.started = make(chan struct{})
	backend.block = make(chan struct{})
	book := connections.NewBook(backend, 1)

	done := make(chan error)
	go func() { done <- book.Connect(ctx, 2) }()

	select {
	case <-backend.started:
	case <-time.After(time.Second):
		t.Fatal("request never reached the backend")
	}

	require.ErrorIs(t, book.Connect(ctx, 2), inflight.ErrInFlight)

	close(backend.block)
	require.NoError(t, <-done)
	require.Equal(t, connections.StatusPendingOut, book.Status(2))
}
