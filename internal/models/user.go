package models

// User represents a platform account
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	FullName          string    `json:"fullName"`
	Bio               string    `json:"bio,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	IsActive          bool      `json:"isActive"`
	IsVerified        bool      `json:"isVerified"`
	CreatedAt         Timestamp `json:"createdAt"`
	UpdatedAt         Timestamp `json:"updatedAt"`
}

type Credentials struct {
	Email    string
	Password string
}

type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// ProfileUpdate carries only the fields being changed.
type ProfileUpdate struct {
	FullName *string `json:"fullName,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
}
