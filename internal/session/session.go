// Package session holds the authentication state of one chat.
//
// A Session is created when a chat first talks to the bot, restored from the
// token store by Init, and torn down by Logout. Nothing about it is global:
// every handler receives the session of its own chat.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/models"
	"github.com/xaenox/pairpost/internal/storage"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type Session struct {
	mu sync.RWMutex

	chatID int64
	client *api.Client
	store  storage.TokenStore
	logger *zap.Logger
	now    func() time.Time

	token string
	user  *models.User
}

type Option func(*Session)

// WithClock overrides the clock used for the token expiry pre-check.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func New(chatID int64, client *api.Client, store storage.TokenStore, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		chatID: chatID,
		client: client,
		store:  store,
		logger: logger.With(zap.Int64("chat_id", chatID)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores a persisted token and validates it against the backend. An
// expired or rejected token is dropped; that is not an error.
func (s *Session) Init(ctx context.Context) error {
	token, err := s.store.LoadToken(ctx, s.chatID)
	if errors.Is(err, storage.ErrNoToken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}

	if tokenExpired(token, s.now()) {
		s.logger.Info("Stored token expired")
		s.clear(ctx)
		return nil
	}

	user, err := s.client.WithToken(token).Me(ctx)
	if err != nil {
		s.logger.Info("Stored token rejected", zap.Error(err))
		s.clear(ctx)
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	return nil
}

func (s *Session) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	tok, err := s.client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	user, err := s.client.WithToken(tok.AccessToken).Me(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.establish(ctx, tok.AccessToken, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Session) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	out, err := s.client.Register(ctx, reg)
	if err != nil {
		return nil, err
	}

	if err := s.establish(ctx, out.AccessToken, &out.User); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (s *Session) establish(ctx context.Context, token string, user *models.User) error {
	if err := s.store.SaveToken(ctx, s.chatID, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	return nil
}

// Logout tells the backend and clears local state. A failing backend call is
// logged and ignored; the session always ends up cleared.
func (s *Session) Logout(ctx context.Context) {
	if token := s.Token(); token != "" {
		if err := s.client.WithToken(token).Logout(ctx); err != nil {
			s.logger.Warn("Logout call failed", zap.Error(err))
		}
	}
	s.clear(ctx)
}

// Invalidate drops the session without calling the backend, for a token the
// backend has already rejected.
func (s *Session) Invalidate(ctx context.Context) {
	s.clear(ctx)
}

func (s *Session) clear(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.DeleteToken(ctx, s.chatID); err != nil {
		s.logger.Error("Failed to delete token", zap.Error(err))
	}
}

func (s *Session) RefreshUser(ctx context.Context) (*models.User, error) {
	client, err := s.RequireAuth()
	if err != nil {
		return nil, err
	}

	user, err := client.Me(ctx)
	if err != nil {
		return nil, err
	}

	s.SetUser(user)
	return user, nil
}

// SetUser replaces the cached user, e.g. after a profile update.
func (s *Session) SetUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		s.user = user
	}
}

func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return 0
	}
	return s.user.ID
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token != "" && s.user != nil
}

// RequireAuth is the route guard: it returns a client bound to the session's
// token, or ErrNotAuthenticated.
func (s *Session) RequireAuth() (*api.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" || s.user == nil {
		return nil, ErrNotAuthenticated
	}
	return s.client.WithToken(s.token), nil
}

// tokenExpired reads the exp claim without verifying the signature. Tokens
// that are not JWTs are never considered expired here.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
