package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/agentcfg"
	"github.com/xaenox/pairpost/internal/connections"
	"github.com/xaenox/pairpost/internal/feed"
	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/onboarding"
	"github.com/xaenox/pairpost/internal/session"
)

type inputKind int

const (
	inputNone inputKind = iota
	inputComment
	inputEditPost
	inputPublishDraft
	inputEditComment
	inputTopics
	inputContext
)

// pendingInput is what the next plain text message of a chat means.
type pendingInput struct {
	kind   inputKind
	source    feed.Source
	postID    int64
	commentID int64
}

// chat is everything the bot remembers about one Telegram chat. The views
// are bound to the session's token and dropped whenever it changes.
type chat struct {
	id      int64
	session *session.Session
	guard   *inflight.Guard
	ready   sync.Once

	mu     sync.Mutex
	feeds  map[feed.Source]*feed.Store
	book   *connections.Book
	form   *agentcfg.Form
	wizard *onboarding.Wizard
	input  pendingInput
}

func (b *Bot) chat(ctx context.Context, chatID int64) *chat {
	b.mu.Lock()
	c, ok := b.chats[chatID]
	if !ok {
		c = &chat{
			id:      chatID,
			session: session.New(chatID, b.client, b.store, b.logger),
			guard:   inflight.NewGuard(),
			feeds:   make(map[feed.Source]*feed.Store),
		}
		b.chats[chatID] = c
	}
	b.mu.Unlock()

	c.ready.Do(func() {
		if err := c.session.Init(ctx); err != nil {
			b.logger.Error("Failed to restore session", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	})
	return c
}

func (c *chat) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feeds = make(map[feed.Source]*feed.Store)
	c.book = nil
	c.form = nil
	c.wizard = nil
	c.input = pendingInput{}
}

func (c *chat) feed(source feed.Source) (*feed.Store, error) {
	client, err := c.session.RequireAuth()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	store, ok := c.feeds[source]
	if !ok {
		store = feed.NewStore(client, source, feed.WithGuard(c.guard))
		c.feeds[source] = store
	}
	return store, nil
}

// loadedFeed returns the store for source, loading it if it never was.
func (c *chat) loadedFeed(ctx context.Context, source feed.Source) (*feed.Store, error) {
	store, err := c.feed(source)
	if err != nil {
		return nil, err
	}
	if store.State() != feed.StateReady && store.State() != feed.StateEmpty {
		if err := store.Load(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (c *chat) connections() (*connections.Book, error) {
	client, err := c.session.RequireAuth()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.book == nil {
		c.book = connections.NewBook(client, c.session.UserID())
	}
	return c.book, nil
}

func (c *chat) agentForm() (*agentcfg.Form, error) {
	client, err := c.session.RequireAuth()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form == nil {
		c.form = agentcfg.NewForm(client)
	}
	return c.form, nil
}

// startOnboarding replaces any questionnaire in progress with a fresh one.
func (c *chat) startOnboarding() (*onboarding.Wizard, error) {
	client, err := c.session.RequireAuth()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.wizard = onboarding.NewWizard(client)
	return c.wizard, nil
}

func (c *chat) onboarding() *onboarding.Wizard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wizard
}

func (c *chat) endOnboarding() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wizard = nil
}

func (c *chat) expect(input pendingInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = input
}

func (c *chat) takeInput() pendingInput {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.input
	c.input = pendingInput{}
	return input
}

// known returns every loaded feed, for actions that must show up in all of them.
func (c *chat) known() []*feed.Store {
	c.mu.Lock()
	defer c.mu.Unlock()

	stores := make([]*feed.Store, 0, len(c.feeds))
	for _, s := range c.feeds {
		stores = append(stores, s)
	}
	return stores
}
