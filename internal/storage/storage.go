package storage

import (
	"context"
	"errors"
)

var ErrNoToken = errors.New("no token stored for chat")

// TokenStore persists the bearer token of each chat so a restarted bot can
// restore sessions.
type TokenStore interface {
	LoadToken(ctx context.Context, chatID int64) (string, error)
	SaveToken(ctx context.Context, chatID int64, token string) error
	DeleteToken(ctx context.Context, chatID int64) error
	Ping(ctx context.Context) error
	Close() error
}
