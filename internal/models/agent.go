package models

import (
	"encoding/json"
	"fmt"
)

// Autonomy levels below this hold agent output as drafts.
const ApprovalThreshold = 7

const (
	MinAutonomy = 1
	MaxAutonomy = 10
)

// Personality is the agent's personality_data bag. Keys this client does not
// know about are kept in Extra and written back untouched.
type Personality struct {
	UseCase            string
	CommunicationStyle string
	TopicsOfInterest   []string
	Extra              map[string]any
}

const (
	keyUseCase            = "use_case"
	keyCommunicationStyle = "communication_style"
	keyTopicsOfInterest   = "topics_of_interest"
	keyPostingFrequency   = "posting_frequency"
	keyAdditionalContext  = "additional_context"
)

func (p *Personality) UnmarshalJSON(data []byte) error {
	fields, err := splitKnown(data, keyUseCase, keyCommunicationStyle, keyTopicsOfInterest)
	if err != nil {
		return err
	}

	*p = Personality{Extra: fields.extra}
	if err := fields.decode(keyUseCase, &p.UseCase); err != nil {
		return err
	}
	if err := fields.decode(keyCommunicationStyle, &p.CommunicationStyle); err != nil {
		return err
	}
	return fields.decode(keyTopicsOfInterest, &p.TopicsOfInterest)
}

func (p Personality) MarshalJSON() ([]byte, error) {
	out := cloneExtra(p.Extra)
	if p.UseCase != "" {
		out[keyUseCase] = p.UseCase
	}
	if p.CommunicationStyle != "" {
		out[keyCommunicationStyle] = p.CommunicationStyle
	}
	if p.TopicsOfInterest != nil {
		out[keyTopicsOfInterest] = p.TopicsOfInterest
	}
	return json.Marshal(out)
}

// Preferences is the agent's preferences bag.
type Preferences struct {
	PostingFrequency  string
	AdditionalContext string
	Extra             map[string]any
}

func (p *Preferences) UnmarshalJSON(data []byte) error {
	fields, err := splitKnown(data, keyPostingFrequency, keyAdditionalContext)
	if err != nil {
		return err
	}

	*p = Preferences{Extra: fields.extra}
	if err := fields.decode(keyPostingFrequency, &p.PostingFrequency); err != nil {
		return err
	}
	return fields.decode(keyAdditionalContext, &p.AdditionalContext)
}

func (p Preferences) MarshalJSON() ([]byte, error) {
	out := cloneExtra(p.Extra)
	if p.PostingFrequency != "" {
		out[keyPostingFrequency] = p.PostingFrequency
	}
	if p.AdditionalContext != "" {
		out[keyAdditionalContext] = p.AdditionalContext
	}
	return json.Marshal(out)
}

type knownFields struct {
	known map[string]json.RawMessage
	extra map[string]any
}

func splitKnown(data []byte, keys ...string) (knownFields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return knownFields{}, err
	}

	fields := knownFields{known: map[string]json.RawMessage{}}
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			fields.known[key] = v
			delete(raw, key)
		}
	}

	for key, v := range raw {
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return knownFields{}, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if fields.extra == nil {
			fields.extra = map[string]any{}
		}
		fields.extra[key] = value
	}

	return fields, nil
}

func (f knownFields) decode(key string, dst any) error {
	v, ok := f.known[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func cloneExtra(extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Agent is the per-user automated actor.
type Agent struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"userId"`
	Name            string      `json:"name"`
	SystemPrompt    string      `json:"systemPrompt"`
	PersonalityData Personality `json:"personalityData"`
	Preferences     Preferences `json:"preferences"`
	AutonomyLevel   int         `json:"autonomyLevel"`
	IsActive        bool        `json:"isActive"`
	ActionsToday    int         `json:"actionsToday"`
	LastActionAt    *Timestamp  `json:"lastActionAt"`
	CreatedAt       Timestamp   `json:"createdAt"`
	UpdatedAt       Timestamp   `json:"updatedAt"`
}

// NeedsApproval reports whether generated posts land as drafts.
func (a Agent) NeedsApproval() bool {
	return a.AutonomyLevel < ApprovalThreshold
}

// AgentUpdate is the PUT /api/agents/me body. Nil fields are left unchanged.
type AgentUpdate struct {
	Name            *string      `json:"name,omitempty"`
	SystemPrompt    *string      `json:"system_prompt,omitempty"`
	PersonalityData *Personality `json:"personality_data,omitempty"`
	Preferences     *Preferences `json:"preferences,omitempty"`
	AutonomyLevel   *int         `json:"autonomy_level,omitempty"`
	IsActive        *bool        `json:"is_active,omitempty"`
}

type UseCase string

const (
	UseCaseProductivity UseCase = "productivity"
	UseCaseSocial       UseCase = "social"
)

type PostingFrequency string

const (
	PostDaily  PostingFrequency = "daily"
	PostWeekly PostingFrequency = "weekly"
	PostRarely PostingFrequency = "rarely"
)

type CommunicationStyle string

const (
	StyleProfessional CommunicationStyle = "professional"
	StyleCasual       CommunicationStyle = "casual"
	StyleFriendly     CommunicationStyle = "friendly"
)

// Questionnaire is the onboarding payload for POST /api/agents/.
type Questionnaire struct {
	UseCase            UseCase            `json:"use_case"`
	PostingFrequency   PostingFrequency   `json:"posting_frequency"`
	TopicsOfInterest   []string           `json:"topics_of_interest"`
	CommunicationStyle CommunicationStyle `json:"communication_style"`
	AutonomyPreference int                `json:"autonomy_preference"`
	AdditionalContext  string             `json:"additional_context,omitempty"`
}

// AgentAction is one entry of the agent's activity log.
type AgentAction struct {
	ID              int64          `json:"id"`
	ActionType      string         `json:"actionType"`
	Status          string         `json:"status"`
	Description     string         `json:"description"`
	Metadata        map[string]any `json:"metadata"`
	UserFeedback    *string        `json:"userFeedback"`
	EngagementScore float64        `json:"engagementScore"`
	CreatedAt       Timestamp      `json:"createdAt"`
}

type TodayStats struct {
	PostsCreated         int `json:"postsCreated"`
	CommentsCreated      int `json:"commentsCreated"`
	LikesGiven           int `json:"likesGiven"`
	ConnectionsRequested int `json:"connectionsRequested"`
}

// DashboardAgent is the short agent block of the dashboard. The dashboard
// endpoint returns a plain dict, so these keys are snake_case.
type DashboardAgent struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	AutonomyLevel int        `json:"autonomy_level"`
	ActionsToday  int        `json:"actions_today"`
	LastActionAt  *Timestamp `json:"last_action_at"`
}

type DashboardStats struct {
	TotalPosts        int `json:"total_posts"`
	TotalInteractions int `json:"total_interactions"`
	Connections       int `json:"connections"`
}

type Dashboard struct {
	Agent          DashboardAgent `json:"agent"`
	Stats          DashboardStats `json:"stats"`
	TodayStats     *TodayStats    `json:"todayStats,omitempty"`
	RecentActivity []AgentAction  `json:"recent_activity"`
	RecentActions  []AgentAction  `json:"recentActions,omitempty"`
}

// Activity returns whichever recent-activity list the server filled.
func (d Dashboard) Activity() []AgentAction {
	if len(d.RecentActions) > 0 {
		return d.RecentActions
	}
	return d.RecentActivity
}
