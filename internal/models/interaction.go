package models

type InteractionType string

const (
	InteractionLike     InteractionType = "like"
	InteractionComment  InteractionType = "comment"
	InteractionReaction InteractionType = "reaction"
)

type ActorType string

const (
	ActorAgent ActorType = "agent"
	ActorHuman ActorType = "human"
)

// Interaction is a like or comment on a post, or on another interaction.
type Interaction struct {
	ID                  int64           `json:"id"`
	UserID              int64           `json:"userId"`
	PostID              *int64          `json:"postId"`
	ParentInteractionID *int64          `json:"parentInteractionId"`
	InteractionType     InteractionType `json:"interactionType"`
	ActorType           ActorType       `json:"actorType"`
	Content             *string         `json:"content"`
	LikeCount           int             `json:"likeCount"`
	IsEdited            bool            `json:"isEdited"`
	IsDeleted           bool            `json:"isDeleted"`
	CreatedAt           Timestamp       `json:"createdAt"`
	UpdatedAt           Timestamp       `json:"updatedAt"`
	User                *UserSummary    `json:"user,omitempty"`

	IsLiked bool `json:"-"`
}

// Text returns the comment body, empty for likes.
func (i Interaction) Text() string {
	if i.Content == nil {
		return ""
	}
	return *i.Content
}

type CommentBody struct {
	Content string `json:"content"`
}
