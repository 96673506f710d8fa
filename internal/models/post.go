package models

type PostType string

const (
	PostTypeAgent PostType = "agent"
	PostTypeHuman PostType = "human"
)

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusScheduled PostStatus = "scheduled"
)

// Post is a piece of content written by a user or generated by their agent.
type Post struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"userId"`
	AgentID      *int64       `json:"agentId"`
	Content      string       `json:"content"`
	PostType     PostType     `json:"postType"`
	Status       PostStatus   `json:"status"`
	IsEdited     bool         `json:"isEdited"`
	EditedByUser bool         `json:"editedByUser"`
	IsDeleted    bool         `json:"isDeleted"`
	LikeCount    int          `json:"likeCount"`
	CommentCount int          `json:"commentCount"`
	CreatedAt    Timestamp    `json:"createdAt"`
	UpdatedAt    Timestamp    `json:"updatedAt"`
	Author       *UserSummary `json:"author,omitempty"`

	// IsLiked is client state, hydrated from the like-status endpoint.
	IsLiked bool `json:"-"`
}

// IsPendingApproval reports whether the post is an agent draft waiting on its owner.
func (p Post) IsPendingApproval() bool {
	return p.Status == StatusDraft && p.PostType == PostTypeAgent
}

type NewPost struct {
	Content string `json:"content"`
}

// PostUpdate is the PUT /api/posts/{id} body.
type PostUpdate struct {
	Content *string     `json:"content,omitempty"`
	Status  *PostStatus `json:"status,omitempty"`
}

type LikeStatus struct {
	IsLiked bool `json:"isLiked"`
}
