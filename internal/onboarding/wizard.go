// Package onboarding walks a new user through the questionnaire that creates
// their agent.
package onboarding

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/xaenox/pairpost/internal/models"
)

var (
	ErrIncomplete = errors.New("answer this step before continuing")
	ErrNotLast    = errors.New("questionnaire is not finished")
	ErrBusy       = errors.New("questionnaire is being submitted")
	ErrInvalid    = errors.New("invalid answer")
)

type Step int

const (
	StepUseCase Step = iota
	StepFrequency
	StepTopics
	StepStyle
	StepAutonomy
)

const StepCount = int(StepAutonomy) + 1

func (s Step) String() string {
	switch s {
	case StepUseCase:
		return "use case"
	case StepFrequency:
		return "posting frequency"
	case StepTopics:
		return "topics"
	case StepStyle:
		return "communication style"
	case StepAutonomy:
		return "autonomy"
	default:
		return "unknown"
	}
}

type Phase int

const (
	PhaseQuestionnaire Phase = iota
	PhaseSubmitting
	PhaseDone
)

const DefaultAutonomy = 5

var (
	UseCases    = []models.UseCase{models.UseCaseProductivity, models.UseCaseSocial}
	Frequencies = []models.PostingFrequency{models.PostDaily, models.PostWeekly, models.PostRarely}
	Styles      = []models.CommunicationStyle{models.StyleProfessional, models.StyleCasual, models.StyleFriendly}
)

type Backend interface {
	CreateAgent(ctx context.Context, q models.Questionnaire) (*models.Agent, error)
}

type Wizard struct {
	backend Backend

	mu      sync.Mutex
	step    Step
	phase   Phase
	answers models.Questionnaire
	err     error
	agent   *models.Agent
}

func NewWizard(backend Backend) *Wizard {
	return &Wizard{
		backend: backend,
		answers: models.Questionnaire{
			AutonomyPreference: DefaultAutonomy,
			TopicsOfInterest:   []string{},
		},
	}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Answers returns a copy of what has been filled in so far.
func (w *Wizard) Answers() models.Questionnaire {
	w.mu.Lock()
	defer w.mu.Unlock()

	q := w.answers
	q.TopicsOfInterest = append([]string{}, w.answers.TopicsOfInterest...)
	return q
}

// Err is the failure of the last submit.
func (w *Wizard) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Agent is the agent created by a successful submit.
func (w *Wizard) Agent() (*models.Agent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.agent, w.agent != nil
}

// answered must be called with mu held. Topics are optional.
func (w *Wizard) answered(s Step) bool {
	switch s {
	case StepUseCase:
		return lo.Contains(UseCases, w.answers.UseCase)
	case StepFrequency:
		return lo.Contains(Frequencies, w.answers.PostingFrequency)
	case StepTopics:
		return true
	case StepStyle:
		return lo.Contains(Styles, w.answers.CommunicationStyle)
	case StepAutonomy:
		return w.answers.AutonomyPreference >= models.MinAutonomy &&
			w.answers.AutonomyPreference <= models.MaxAutonomy
	}
	return false
}

func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase == PhaseQuestionnaire && w.answered(w.step)
}

// Next moves to the following step once the current one is answered.
// It reports whether this is already the last step.
func (w *Wizard) Next() (last bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != PhaseQuestionnaire {
		return false, ErrBusy
	}
	if !w.answered(w.step) {
		return false, ErrIncomplete
	}
	if w.step == StepAutonomy {
		return true, nil
	}
	w.step++
	return w.step == StepAutonomy, nil
}

// Back moves to the previous step. From the first step it reports exit
// instead, and the caller leaves the questionnaire.
func (w *Wizard) Back() (exit bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != PhaseQuestionnaire {
		return false
	}
	if w.step == StepUseCase {
		return true
	}
	w.step--
	return false
}

func (w *Wizard) set(fn func(q *models.Questionnaire)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != PhaseQuestionnaire {
		return ErrBusy
	}
	fn(&w.answers)
	return nil
}

func (w *Wizard) SetUseCase(u models.UseCase) error {
	if !lo.Contains(UseCases, u) {
		return ErrInvalid
	}
	return w.set(func(q *models.Questionnaire) { q.UseCase = u })
}

func (w *Wizard) SetFrequency(f models.PostingFrequency) error {
	if !lo.Contains(Frequencies, f) {
		return ErrInvalid
	}
	return w.set(func(q *models.Questionnaire) { q.PostingFrequency = f })
}

func (w *Wizard) SetStyle(s models.CommunicationStyle) error {
	if !lo.Contains(Styles, s) {
		return ErrInvalid
	}
	return w.set(func(q *models.Questionnaire) { q.CommunicationStyle = s })
}

func (w *Wizard) SetAutonomy(level int) error {
	if level < models.MinAutonomy || level > models.MaxAutonomy {
		return ErrInvalid
	}
	return w.set(func(q *models.Questionnaire) { q.AutonomyPreference = level })
}

func (w *Wizard) SetContext(text string) error {
	return w.set(func(q *models.Questionnaire) { q.AdditionalContext = strings.TrimSpace(text) })
}

// AddTopic adds a topic once. Blank topics are ignored.
func (w *Wizard) AddTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}
	return w.set(func(q *models.Questionnaire) {
		if !lo.Contains(q.TopicsOfInterest, topic) {
			q.TopicsOfInterest = append(q.TopicsOfInterest, topic)
		}
	})
}

func (w *Wizard) RemoveTopic(topic string) error {
	return w.set(func(q *models.Questionnaire) {
		q.TopicsOfInterest = lo.Without(q.TopicsOfInterest, strings.TrimSpace(topic))
	})
}

// Submit sends the questionnaire from the last step. On failure the wizard
// returns to the last step with every answer kept.
func (w *Wizard) Submit(ctx context.Context) (*models.Agent, error) {
	w.mu.Lock()
	if w.phase != PhaseQuestionnaire {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if w.step != StepAutonomy {
		w.mu.Unlock()
		return nil, ErrNotLast
	}
	if !w.answered(w.step) {
		w.mu.Unlock()
		return nil, ErrIncomplete
	}
	w.phase = PhaseSubmitting
	w.err = nil
	q := w.answers
	q.TopicsOfInterest = append([]string{}, w.answers.TopicsOfInterest...)
	w.mu.Unlock()

	agent, err := w.backend.CreateAgent(ctx, q)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.phase = PhaseQuestionnaire
		w.step = StepAutonomy
		w.err = err
		return nil, err
	}

	w.phase = PhaseDone
	w.agent = agent
	return agent, nil
}
