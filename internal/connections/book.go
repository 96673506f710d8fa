package connections

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

// Backend is the slice of the API the connections view needs.
type Backend interface {
	Users(ctx context.Context) ([]models.User, error)
	Connections(ctx context.Context, status models.ConnectionStatus) ([]models.Connection, error)
	RequestConnection(ctx context.Context, userID int64) (*models.Connection, error)
	AcceptConnection(ctx context.Context, connectionID int64) (*models.Connection, error)
	RejectConnection(ctx context.Context, connectionID int64) (*models.Connection, error)
	RemoveConnection(ctx context.Context, connectionID int64) error
}

type Tab string

const (
	TabBrowse   Tab = "browse"
	TabPending  Tab = "pending"
	TabAccepted Tab = "accepted"
)

func (t Tab) filter() models.ConnectionStatus {
	if t == TabPending {
		return models.ConnectionPending
	}
	return models.ConnectionAccepted
}

// Entry is one row of the browse tab.
type Entry struct {
	User         models.User
	Status       Status
	ConnectionID int64
}

// Book is the connections view state of one viewer. Every mutation is
// followed by a refetch of the current tab; nothing is patched locally.
type Book struct {
	backend Backend
	me      int64
	guard   *inflight.Guard

	mu     sync.Mutex
	tab    Tab
	users  []models.User
	all    []models.Connection
	listed []models.Connection
	err    error
}

func NewBook(backend Backend, me int64) *Book {
	return &Book{
		backend: backend,
		me:      me,
		guard:   inflight.NewGuard(),
		tab:     TabBrowse,
	}
}

func (b *Book) Tab() Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tab
}

// Err returns the error of the last load, if it failed.
func (b *Book) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Load switches to tab and fetches its data.
func (b *Book) Load(ctx context.Context, tab Tab) error {
	var (
		users  []models.User
		all    []models.Connection
		listed []models.Connection
	)

	if tab == TabBrowse {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			users, err = b.backend.Users(gctx)
			return err
		})
		g.Go(func() (err error) {
			all, err = b.backend.Connections(gctx, "")
			return err
		})
		if err := g.Wait(); err != nil {
			return b.failed(tab, err)
		}
	} else {
		var err error
		listed, err = b.backend.Connections(ctx, tab.filter())
		if err != nil {
			return b.failed(tab, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tab = tab
	b.err = nil
	if tab == TabBrowse {
		b.users = users
		b.all = all
	} else {
		b.listed = listed
	}
	return nil
}

func (b *Book) failed(tab Tab, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tab = tab
	b.err = err
	return fmt.Errorf("failed to load %s connections: %w", tab, err)
}

// Browse lists every other user with the viewer's relationship to them.
func (b *Book) Browse() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	others := lo.Filter(b.users, func(u models.User, _ int) bool {
		return u.ID != b.me
	})

	return lo.Map(others, func(u models.User, _ int) Entry {
		id, _ := ConnectionID(b.all, b.me, u.ID)
		return Entry{
			User:         u,
			Status:       Resolve(b.all, b.me, u.ID),
			ConnectionID: id,
		}
	})
}

// Listed returns the connections of the pending or accepted tab.
func (b *Book) Listed() []models.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]models.Connection(nil), b.listed...)
}

// Incoming returns pending requests addressed to the viewer.
func (b *Book) Incoming() []models.Connection {
	return lo.Filter(b.Listed(), func(c models.Connection, _ int) bool {
		return c.Status == models.ConnectionPending && c.ConnectedUserID == b.me
	})
}

// Outgoing returns pending requests the viewer sent.
func (b *Book) Outgoing() []models.Connection {
	return lo.Filter(b.Listed(), func(c models.Connection, _ int) bool {
		return c.Status == models.ConnectionPending && c.UserID == b.me
	})
}

// Status resolves the viewer's relationship to target from the browse data.
func (b *Book) Status(target int64) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Resolve(b.all, b.me, target)
}

func (b *Book) mutate(ctx context.Context, key string, call func(context.Context) error) error {
	release, err := b.guard.Acquire(key)
	if err != nil {
		return err
	}
	defer release()

	if err := call(ctx); err != nil {
		return err
	}

	return b.Load(ctx, b.Tab())
}

func (b *Book) Connect(ctx context.Context, userID int64) error {
	return b.mutate(ctx, inflight.Key("user", userID), func(ctx context.Context) error {
		_, err := b.backend.RequestConnection(ctx, userID)
		return err
	})
}

func (b *Book) Accept(ctx context.Context, connectionID int64) error {
	return b.mutate(ctx, inflight.Key("connection", connectionID), func(ctx context.Context) error {
		_, err := b.backend.AcceptConnection(ctx, connectionID)
		return err
	})
}

func (b *Book) Reject(ctx context.Context, connectionID int64) error {
	return b.mutate(ctx, inflight.Key("connection", connectionID), func(ctx context.Context) error {
		_, err := b.backend.RejectConnection(ctx, connectionID)
		return err
	})
}

func (b *Book) Remove(ctx context.Context, connectionID int64) error {
	return b.mutate(ctx, inflight.Key("connection", connectionID), func(ctx context.Context) error {
		return b.backend.RemoveConnection(ctx, connectionID)
	})
}
