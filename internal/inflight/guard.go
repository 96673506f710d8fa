// Package inflight keeps one pending mutation per entity.
package inflight

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInFlight = errors.New("action already in progress")

// Guard tracks keys with an outstanding action. Distinct keys never block
// each other; a second Acquire of a busy key fails immediately.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// Key builds a guard key such as "post:12".
func Key(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// Acquire marks key busy and returns the release func.
func (g *Guard) Acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.busy[key]; ok {
		return nil, fmt.Errorf("%s: %w", key, ErrInFlight)
	}
	g.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, nil
}

func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.busy[key]
	return ok
}
