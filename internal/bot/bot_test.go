package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/storage"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	return "", nil
}

// texts returns the text of every message sent or edited so far.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) deleted() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.sent {
		if _, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			n++
		}
	}
	return n
}

// buttons returns the callback data of every keyboard sent so far.
func (f *fakeSender) buttons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		m, ok := c.(tgbotapi.MessageConfig)
		if !ok {
			continue
		}
		if keyboard, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			out = append(out, buttonData(keyboard)...)
		}
	}
	return out
}

func (f *fakeSender) contains(substr string) bool {
	for _, text := range f.texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type fakeAPI struct {
	likes      atomic.Int32
	feedStatus atomic.Int32

	mu      sync.Mutex
	comment string
}

func (f *fakeAPI) commentText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comment
}

func (f *fakeAPI) writeComment(w io.Writer) {
	body, _ := json.Marshal(map[string]any{
		"id": 7, "userId": 1, "postId": 5, "interactionType": "comment", "content": f.commentText(),
	})
	w.Write(body)
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		authed := r.Header.Get("Authorization") == "Bearer tok"
		route := r.Method + " " + r.URL.Path

		switch {
		case route == "POST /api/auth/login":
			io.WriteString(w, `{"access_token": "tok", "token_type": "bearer"}`)
		case !authed:
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail": "Could not validate credentials"}`)
		case route == "GET /api/auth/me":
			io.WriteString(w, `{"id": 1, "email": "ann@example.com", "fullName": "Ann"}`)
		case route == "GET /api/feed/":
			if status := f.feedStatus.Load(); status != 0 {
				w.WriteHeader(int(status))
				io.WriteString(w, `{"detail": "Could not validate credentials"}`)
				return
			}
			io.WriteString(w, `[{"id": 5, "userId": 2, "content": "hello world", "postType": "human",
				"status": "published", "likeCount": 1, "commentCount": 0,
				"author": {"id": 2, "fullName": "Bo"}}]`)
		case route == "GET /api/posts/5/like/status":
			io.WriteString(w, `{"isLiked": false}`)
		case route == "POST /api/posts/5/like":
			f.likes.Add(1)
			io.WriteString(w, `{"id": 99, "userId": 1, "postId": 5, "interactionType": "like"}`)
		case route == "GET /api/posts/5/comments":
			io.WriteString(w, "[")
			f.writeComment(w)
			io.WriteString(w, "]")
		case route == "GET /api/comments/7/like/status":
			io.WriteString(w, `{"isLiked": false}`)
		case route == "PUT /api/comments/7":
			var body struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode comment: %v", err)
			}
			f.mu.Lock()
			f.comment = body.Content
			f.mu.Unlock()
			f.writeComment(w)
		case route == "POST /api/auth/logout":
			io.WriteString(w, `{}`)
		default:
			t.Errorf("unexpected request %s", route)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestBot(t *testing.T, backend *fakeAPI) (*Bot, *fakeSender, storage.TokenStore) {
	t.Helper()

	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	client := api.NewClient(&api.ClientConfig{BaseURL: srv.URL})
	t.Cleanup(func() { client.Close() })

	sender := &fakeSender{}
	store := storage.NewMemoryStorage()
	b := NewWithSender(sender, client, store, zap.NewNop())
	t.Cleanup(func() { b.Close() })

	return b, sender, store
}

func command(chatID int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func reply(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 11,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID},
	}}
}

func press(chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		Data: data,
		From: &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID},
		},
	}}
}

func TestProtectedCommandNeedsLogin(t *testing.T) {
	t.Parallel()

	b, sender, _ := newTestBot(t, &fakeAPI{})
	b.HandleUpdate(context.Background(), command(1, "/feed"))

	require.Equal(t, []string{"⚠️ Please /login first."}, sender.texts())
}

func TestLoginFeedAndLike(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeAPI{}
	b, sender, store := newTestBot(t, backend)

	b.HandleUpdate(ctx, command(1, "/login ann@example.com secret"))
	require.True(t, sender.contains("Signed in as Ann."))
	require.Equal(t, 1, sender.deleted())

	token, err := store.LoadToken(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "tok", token)

	b.HandleUpdate(ctx, command(1, "/feed"))
	require.True(t, sender.contains("Your feed"))
	require.True(t, sender.contains("hello world"))
	require.True(t, sender.contains("🤍 1"))

	b.HandleUpdate(ctx, press(1, 77, "like:p:5"))
	require.Equal(t, int32(1), backend.likes.Load())
	require.True(t, sender.contains("❤️ 2"))

	b.HandleUpdate(ctx, command(1, "/logout"))
	require.True(t, sender.contains("Signed out."))
	_, err = store.LoadToken(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNoToken)
}

func TestRejectedTokenEndsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeAPI{}
	b, sender, store := newTestBot(t, backend)

	b.HandleUpdate(ctx, command(1, "/login ann@example.com secret"))
	backend.feedStatus.Store(http.StatusUnauthorized)

	b.HandleUpdate(ctx, command(1, "/feed"))
	require.True(t, sender.contains("Your session has expired"))

	_, err := store.LoadToken(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNoToken)

	b.HandleUpdate(ctx, command(1, "/feed"))
	require.Equal(t, "⚠️ Please /login first.", sender.texts()[len(sender.texts())-1])
}

func TestSessionRestoredFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, sender, store := newTestBot(t, &fakeAPI{})
	require.NoError(t, store.SaveToken(ctx, 3, "tok"))

	b.HandleUpdate(ctx, command(3, "/feed"))
	require.True(t, sender.contains("hello world"))
}

func TestFeedFailureOffersRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeAPI{}
	b, sender, _ := newTestBot(t, backend)

	b.HandleUpdate(ctx, command(1, "/login ann@example.com secret"))
	backend.feedStatus.Store(http.StatusInternalServerError)

	b.HandleUpdate(ctx, command(1, "/feed"))
	require.True(t, sender.contains("Couldn't load posts"))

	backend.feedStatus.Store(0)
	b.HandleUpdate(ctx, press(1, 5, "retry:p"))
	require.True(t, sender.contains("hello world"))
}

func TestEditOwnComment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &fakeAPI{comment: "first"}
	b, sender, _ := newTestBot(t, backend)

	b.HandleUpdate(ctx, command(1, "/login ann@example.com secret"))
	b.HandleUpdate(ctx, command(1, "/feed"))

	b.HandleUpdate(ctx, press(1, 20, "cmts:p:5"))
	require.True(t, sender.contains("first"))
	require.Contains(t, sender.buttons(), "cedit:p:5:7")

	b.HandleUpdate(ctx, press(1, 21, "cedit:p:5:7"))
	require.True(t, sender.contains("Send the new text of your comment."))

	b.HandleUpdate(ctx, reply(1, "second thoughts"))
	require.Equal(t, "second thoughts", backend.commentText())

	texts := sender.texts()
	require.Contains(t, texts[len(texts)-1], "second thoughts")
}

// unreachableStore fails every ping and counts token reads.
type unreachableStore struct {
	*storage.MemoryStorage
	loads atomic.Int32
}

func (s *unreachableStore) LoadToken(ctx context.Context, chatID int64) (string, error) {
	s.loads.Add(1)
	return s.MemoryStorage.LoadToken(ctx, chatID)
}

func (s *unreachableStore) Ping(context.Context) error {
	return errBoom
}

var errBoom = errors.New("connection refused")

func TestHealthPingsStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, _, _ := newTestBot(t, &fakeAPI{})
	require.NoError(t, b.Health(ctx))

	store := &unreachableStore{MemoryStorage: storage.NewMemoryStorage()}
	down := NewWithSender(&fakeSender{}, b.client, store, zap.NewNop())
	t.Cleanup(func() { down.Close() })

	require.ErrorIs(t, down.Health(ctx), errBoom)
	require.Zero(t, store.loads.Load())
}
