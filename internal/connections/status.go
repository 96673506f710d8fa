package connections

import (
	"github.com/samber/lo"

	"github.com/xaenox/pairpost/internal/models"
)

// Status is the relationship between the viewer and another user.
type Status string

const (
	StatusNone       Status = "none"
	StatusPendingOut Status = "pending_out"
	StatusPendingIn  Status = "pending_in"
	StatusConnected  Status = "connected"
)

// between finds the first connection joining me and target, in either direction.
func between(conns []models.Connection, me, target int64) (models.Connection, bool) {
	return lo.Find(conns, func(c models.Connection) bool {
		return (c.UserID == me && c.ConnectedUserID == target) ||
			(c.UserID == target && c.ConnectedUserID == me)
	})
}

// Resolve reports how me relates to target given every connection visible to
// me. Only the first matching record counts.
func Resolve(conns []models.Connection, me, target int64) Status {
	conn, ok := between(conns, me, target)
	switch {
	case !ok:
		return StatusNone
	case conn.Status == models.ConnectionAccepted:
		return StatusConnected
	case conn.UserID == me:
		return StatusPendingOut
	default:
		return StatusPendingIn
	}
}

// ConnectionID returns the id of the record Resolve based its answer on.
func ConnectionID(conns []models.Connection, me, target int64) (int64, bool) {
	conn, ok := between(conns, me, target)
	return conn.ID, ok
}
