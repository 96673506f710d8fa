package models

type ConnectionType string

const (
	CloseFriend  ConnectionType = "close_friend"
	Friend       ConnectionType = "friend"
	Acquaintance ConnectionType = "acquaintance"
	Professional ConnectionType = "professional"
)

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

// Connection is a social edge. UserID is the requester and ConnectedUserID the
// recipient; the direction is kept as received even after acceptance.
type Connection struct {
	ID                   int64            `json:"id"`
	UserID               int64            `json:"userId"`
	ConnectedUserID      int64            `json:"connectedUserId"`
	ConnectionType       ConnectionType   `json:"connectionType"`
	Status               ConnectionStatus `json:"status"`
	InitiatedByAgent     bool             `json:"initiatedByAgent"`
	InteractionFrequency int              `json:"interactionFrequency"`
	CreatedAt            Timestamp        `json:"createdAt"`
	UpdatedAt            Timestamp        `json:"updatedAt"`
	User                 *UserSummary     `json:"user,omitempty"`
	ConnectedUser        *UserSummary     `json:"connectedUser,omitempty"`
}

// Peer returns the id of the other side of the edge as seen by me.
func (c Connection) Peer(me int64) int64 {
	if c.UserID == me {
		return c.ConnectedUserID
	}
	return c.UserID
}

// PeerSummary returns the embedded summary of the other side, if the server sent it.
func (c Connection) PeerSummary(me int64) *UserSummary {
	if c.UserID == me {
		return c.ConnectedUser
	}
	return c.User
}
