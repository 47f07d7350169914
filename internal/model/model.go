package model

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTrainee is a regular trainee user role.
	UserRoleTrainee UserRole = "trainee"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// LocalizedText maps a language code to a translated string.
type LocalizedText map[string]string

// In returns the text for the given language, falling back to English and
// then to any available language in deterministic order.
func (t LocalizedText) In(lang string) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	if s, ok := t["en"]; ok && s != "" {
		return s
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// LocalizedOptions maps a language code to an ordered option list.
type LocalizedOptions map[string][]string

// In returns the options for the given language with the same fallback
// rules as LocalizedText.In.
func (o LocalizedOptions) In(lang string) []string {
	if opts, ok := o[lang]; ok && len(opts) > 0 {
		return opts
	}
	if opts, ok := o["en"]; ok && len(opts) > 0 {
		return opts
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(o[k]) > 0 {
			return o[k]
		}
	}
	return nil
}

// Difficulty represents question difficulty level. Informational only;
// scoring does not depend on it.
type Difficulty string

const (
	DifficultySimple  Difficulty = "simple"
	DifficultyComplex Difficulty = "complex"
)

// QuestionKind represents the answer format of a question.
type QuestionKind string

const (
	// KindSingle is a single-choice question answered by one option index.
	KindSingle QuestionKind = "single"
	// KindMulti is a multi-choice question answered by a set of option indices.
	KindMulti QuestionKind = "multi"
	// KindFill is a fill-in-the-blank question graded by fuzzy text match.
	KindFill QuestionKind = "fill"
	// KindCode is a free-form code question; never auto-graded.
	KindCode QuestionKind = "code"
)

// Question represents a test question.
type Question struct {
	ID              string           `json:"id"`
	ModuleID        string           `json:"module_id"`
	StepID          string           `json:"step_id,omitempty"`
	Kind            QuestionKind     `json:"kind"`
	Text            LocalizedText    `json:"text"`
	Options         LocalizedOptions `json:"options,omitempty"`
	CorrectIndex    int              `json:"correct_index,omitempty"`
	CorrectIndices  []int            `json:"correct_indices,omitempty"`
	ReferenceAnswer string           `json:"reference_answer,omitempty"`
	Hint            LocalizedText    `json:"hint,omitempty"`
	Difficulty      Difficulty       `json:"difficulty"`
	ImageURL        string           `json:"image_url,omitempty"`
	OptionImages    []string         `json:"option_images,omitempty"`
}

// Validate checks the question's internal consistency: choice questions
// must have options, and every correct index must be a valid index into
// every language's option list.
func (q Question) Validate() error {
	switch q.Kind {
	case KindSingle, KindMulti:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: %s question has no options", q.ID, q.Kind)
		}
		indices := q.CorrectIndices
		if q.Kind == KindSingle {
			indices = []int{q.CorrectIndex}
		} else if len(indices) == 0 {
			return fmt.Errorf("question %s: multi question has no correct indices", q.ID)
		}
		for lang, opts := range q.Options {
			for _, idx := range indices {
				if idx < 0 || idx >= len(opts) {
					return fmt.Errorf("question %s: correct index %d out of range for %q options (%d)",
						q.ID, idx, lang, len(opts))
				}
			}
		}
	case KindFill:
		if q.ReferenceAnswer == "" {
			return fmt.Errorf("question %s: fill question has no reference answer", q.ID)
		}
	case KindCode:
		// Nothing to validate; code answers are reviewed manually.
	default:
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	return nil
}

// StepKind represents the content type of a training module step.
type StepKind string

const (
	StepIntro   StepKind = "intro"
	StepVideo   StepKind = "video"
	StepContent StepKind = "content"
	StepQuiz    StepKind = "quiz"
)

// QuizStep is an inline single-question quiz inside a module step.
type QuizStep struct {
	Question     LocalizedText    `json:"question"`
	Options      LocalizedOptions `json:"options"`
	CorrectIndex int              `json:"correct_index"`
	Hint         LocalizedText    `json:"hint,omitempty"`
}

// Step is one unit of a training module.
type Step struct {
	ID       string        `json:"id"`
	Kind     StepKind      `json:"kind"`
	Title    LocalizedText `json:"title"`
	Content  LocalizedText `json:"content,omitempty"`
	VideoURL string        `json:"video_url,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
	Quiz     *QuizStep     `json:"quiz,omitempty"`
	TestID   string        `json:"test_id,omitempty"`
}

// Module is a training module: an ordered sequence of steps.
type Module struct {
	ID          string        `json:"id"`
	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description"`
	Icon        string        `json:"icon,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Steps       []Step        `json:"steps"`
}

// Test defines a timed assessment over an ordered list of questions.
// The question order defines presentation order only.
type Test struct {
	ID               string        `json:"id"`
	ModuleID         string        `json:"module_id"`
	Title            LocalizedText `json:"title"`
	QuestionIDs      []string      `json:"question_ids"`
	TimeLimitMinutes int           `json:"time_limit_minutes"`
	PassScorePercent int           `json:"pass_score_percent"`
}

// Validate checks the test configuration. A test failing validation must
// not be started.
func (t Test) Validate() error {
	if len(t.QuestionIDs) == 0 {
		return fmt.Errorf("test %s: no questions", t.ID)
	}
	if t.TimeLimitMinutes <= 0 {
		return fmt.Errorf("test %s: time limit must be positive, got %d", t.ID, t.TimeLimitMinutes)
	}
	if t.PassScorePercent < 0 || t.PassScorePercent > 100 {
		return fmt.Errorf("test %s: pass score must be 0-100, got %d", t.ID, t.PassScorePercent)
	}
	return nil
}

// AttemptStatus represents the lifecycle state of a test attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Attempt is one trainee's instance of taking a test. Score and Passed are
// meaningful only once Status is completed; after that the record is never
// mutated again.
type Attempt struct {
	ID              string        `json:"id"`
	TestID          string        `json:"test_id"`
	UserID          int64         `json:"user_id"`
	Status          AttemptStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
	Answers         []AnswerEntry `json:"answers"`
	Score           int           `json:"score"`
	Passed          bool          `json:"passed"`
}

// UserProgress tracks a trainee's progress through a module.
type UserProgress struct {
	UserID         int64      `json:"user_id"`
	ModuleID       string     `json:"module_id"`
	CompletedSteps []string   `json:"completed_steps"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// AuditAction classifies an administrative action.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
	AuditImport AuditAction = "import"
)

// AuditEntry records one administrative action.
type AuditEntry struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	Action     AuditAction `json:"action"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Details    string      `json:"details,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ContentFile is the JSON layout for authored training content imports.
type ContentFile struct {
	Modules   []Module   `json:"modules,omitempty"`
	Questions []Question `json:"questions,omitempty"`
	Tests     []Test     `json:"tests,omitempty"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	DefaultLang    string   // UI language fallback
	BasePath       string   // URL prefix for sub-path deployments
	SecureCookies  bool     // Set Secure flag on cookies (disable for local dev)
	AllowedOrigins []string // CORS allow-list for the SPA origin
}
