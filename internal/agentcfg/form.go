// Package agentcfg edits the settings of the signed-in user's agent.
package agentcfg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/xaenox/pairpost/internal/inflight"
	"github.com/xaenox/pairpost/internal/models"
)

var (
	ErrNoAgent        = errors.New("agent is not loaded")
	ErrNotEditing     = errors.New("agent settings are not being edited")
	ErrNameRequired   = errors.New("agent name cannot be empty")
	ErrAutonomyRange  = fmt.Errorf("autonomy level must be between %d and %d", models.MinAutonomy, models.MaxAutonomy)
	ErrUnknownStyle   = errors.New("unknown communication style")
	ErrUnknownCadence = errors.New("unknown posting frequency")
)

const (
	DefaultStyle     = models.StyleCasual
	DefaultFrequency = models.PostDaily
)

type Backend interface {
	MyAgent(ctx context.Context) (*models.Agent, error)
	UpdateAgent(ctx context.Context, update models.AgentUpdate) (*models.Agent, error)
}

// Fields are the editable settings, flattened out of the agent's bags.
type Fields struct {
	Name               string
	SystemPrompt       string
	AutonomyLevel      int
	IsActive           bool
	CommunicationStyle models.CommunicationStyle
	Topics             string
	PostingFrequency   models.PostingFrequency
}

// SplitTopics turns "AI, tech , ops" into ["AI" "tech" "ops"].
func SplitTopics(s string) []string {
	return lo.FilterMap(strings.Split(s, ","), func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(t)
		return t, t != ""
	})
}

func JoinTopics(topics []string) string {
	return strings.Join(topics, ", ")
}

// FieldsOf reads the editable settings of an agent.
func FieldsOf(a models.Agent) Fields {
	f := Fields{
		Name:               a.Name,
		SystemPrompt:       a.SystemPrompt,
		AutonomyLevel:      a.AutonomyLevel,
		IsActive:           a.IsActive,
		CommunicationStyle: models.CommunicationStyle(a.PersonalityData.CommunicationStyle),
		Topics:             JoinTopics(a.PersonalityData.TopicsOfInterest),
		PostingFrequency:   models.PostingFrequency(a.Preferences.PostingFrequency),
	}
	if f.CommunicationStyle == "" {
		f.CommunicationStyle = DefaultStyle
	}
	if f.PostingFrequency == "" {
		f.PostingFrequency = DefaultFrequency
	}
	return f
}

func (f Fields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrNameRequired
	}
	if f.AutonomyLevel < models.MinAutonomy || f.AutonomyLevel > models.MaxAutonomy {
		return ErrAutonomyRange
	}
	if !lo.Contains(Styles, f.CommunicationStyle) {
		return fmt.Errorf("%w: %q", ErrUnknownStyle, f.CommunicationStyle)
	}
	if !lo.Contains(Frequencies, f.PostingFrequency) {
		return fmt.Errorf("%w: %q", ErrUnknownCadence, f.PostingFrequency)
	}
	return nil
}

var (
	Styles      = []models.CommunicationStyle{models.StyleProfessional, models.StyleCasual, models.StyleFriendly}
	Frequencies = []models.PostingFrequency{models.PostDaily, models.PostWeekly, models.PostRarely}
)

// update builds a single update from the agent the fields were read from.
// Bag keys this form does not edit are carried over as they were.
func (f Fields) update(base models.Agent) models.AgentUpdate {
	name := strings.TrimSpace(f.Name)
	prompt := f.SystemPrompt
	autonomy := f.AutonomyLevel
	active := f.IsActive

	personality := base.PersonalityData
	personality.CommunicationStyle = string(f.CommunicationStyle)
	personality.TopicsOfInterest = SplitTopics(f.Topics)

	prefs := base.Preferences
	prefs.PostingFrequency = string(f.PostingFrequency)

	return models.AgentUpdate{
		Name:            &name,
		SystemPrompt:    &prompt,
		PersonalityData: &personality,
		Preferences:     &prefs,
		AutonomyLevel:   &autonomy,
		IsActive:        &active,
	}
}

// Form holds the current agent and, while editing, a draft of its settings.
type Form struct {
	backend Backend
	guard   *inflight.Guard

	mu      sync.Mutex
	agent   *models.Agent
	draft   Fields
	editing bool
}

func NewForm(backend Backend) *Form {
	return &Form{backend: backend, guard: inflight.NewGuard()}
}

// Load fetches the agent from the server and leaves edit mode.
func (f *Form) Load(ctx context.Context) (*models.Agent, error) {
	agent, err := f.backend.MyAgent(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.agent = agent
	f.editing = false
	copied := *agent
	return &copied, nil
}

func (f *Form) Agent() (models.Agent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.agent == nil {
		return models.Agent{}, false
	}
	return *f.agent, true
}

// Edit enters edit mode with a draft taken from the current agent.
func (f *Form) Edit() (Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.agent == nil {
		return Fields{}, ErrNoAgent
	}
	f.draft = FieldsOf(*f.agent)
	f.editing = true
	return f.draft, nil
}

func (f *Form) Editing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editing
}

// Draft returns the fields being edited.
func (f *Form) Draft() (Fields, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft, f.editing
}

// Change applies fn to the draft.
func (f *Form) Change(fn func(*Fields)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.editing {
		return ErrNotEditing
	}
	fn(&f.draft)
	return nil
}

func (f *Form) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.editing = false
	f.draft = Fields{}
}

// Save validates the draft and sends it. On success the server's copy
// becomes the current agent and edit mode ends. On failure the current
// agent is the one from before the save and the draft is kept. A second
// Save while one is pending fails with inflight.ErrInFlight.
func (f *Form) Save(ctx context.Context) (*models.Agent, error) {
	release, err := f.guard.Acquire("agent-save")
	if err != nil {
		return nil, err
	}
	defer release()

	f.mu.Lock()
	if !f.editing {
		f.mu.Unlock()
		return nil, ErrNotEditing
	}
	draft := f.draft
	prev := f.agent
	f.mu.Unlock()

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	saved, err := f.backend.UpdateAgent(ctx, draft.update(*prev))
	if err != nil {
		f.mu.Lock()
		f.agent = prev
		f.mu.Unlock()
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.agent = saved
	f.editing = false
	f.draft = Fields{}
	copied := *saved
	return &copied, nil
}
