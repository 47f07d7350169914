// Package session owns the lifecycle of timed test attempts: start/resume,
// answer capture, countdown, periodic persistence, and one-shot submission.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/delphitvs/trainhub/internal/grading"
	"github.com/delphitvs/trainhub/internal/model"
)

// Tick and autosave cadence while an attempt is in progress.
const (
	TickInterval     = time.Second
	AutosaveInterval = 5 * time.Second
)

var (
	// ErrTestNotFound is returned by Start when the test does not exist.
	ErrTestNotFound = errors.New("test not found")
	// ErrNoQuestions is returned by Start when none of the test's question
	// IDs resolve to stored questions.
	ErrNoQuestions = errors.New("test has no resolvable questions")
	// ErrFinalized is returned when mutating an already-finalized attempt.
	ErrFinalized = errors.New("attempt already finalized")
	// ErrUnknownQuestion is returned when an answer targets a question that
	// is not part of the test.
	ErrUnknownQuestion = errors.New("question not part of test")
	// ErrPersist wraps persistence failures. Operations returning it have
	// still succeeded in memory; only the stored record may be stale.
	ErrPersist = errors.New("persist attempt")
)

// AttemptStore is the persistence contract the session layer depends on.
// Get methods return nil (not an error) when the record is absent.
// Last-write-wins per key; no transactional guarantees are assumed.
type AttemptStore interface {
	GetAttempt(id string) (*model.Attempt, error)
	PutAttempt(a model.Attempt) error
	DeleteAttempt(id string) error
	GetMarker(testID string, userID int64) (string, error)
	SetMarker(testID string, userID int64, attemptID string) error
	ClearMarker(testID string, userID int64) error
}

// Catalog is the read-only test/question lookup the session layer consumes.
type Catalog interface {
	GetTest(id string) (*model.Test, error)
	GetQuestion(id string) (*model.Question, error)
}

// Clock abstracts wall-clock time so tests can control it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Manager creates and tracks at most one active Session per (test, user).
type Manager struct {
	store   AttemptStore
	catalog Catalog
	grader  *grading.Grader
	clock   Clock

	mu     sync.Mutex
	active map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithGrader overrides the default grader.
func WithGrader(g *grading.Grader) ManagerOption {
	return func(m *Manager) { m.grader = g }
}

// NewManager creates a session manager.
func NewManager(store AttemptStore, catalog Catalog, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		catalog: catalog,
		grader:  grading.New(),
		clock:   systemClock{},
		active:  make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func sessionKey(testID string, userID int64) string {
	return fmt.Sprintf("%s/%d", testID, userID)
}

// Start returns the session for (test, user), resuming the marked
// in-progress attempt if one exists and creating a fresh attempt otherwise.
// Configuration errors (zero questions, non-positive time limit, pass score
// outside 0-100) are rejected here and no session is created.
func (m *Manager) Start(testID string, userID int64) (*Session, error) {
	test, err := m.catalog.GetTest(testID)
	if err != nil {
		return nil, fmt.Errorf("start test %s: %w", testID, err)
	}
	if test == nil {
		return nil, fmt.Errorf("start test %s: %w", testID, ErrTestNotFound)
	}
	if err := test.Validate(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	questions := make([]model.Question, 0, len(test.QuestionIDs))
	for _, qid := range test.QuestionIDs {
		q, err := m.catalog.GetQuestion(qid)
		if err != nil {
			return nil, fmt.Errorf("start test %s: question %s: %w", testID, qid, err)
		}
		if q == nil {
			slog.Warn("test references missing question", "test_id", testID, "question_id", qid)
			continue
		}
		questions = append(questions, *q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("start test %s: %w", testID, ErrNoQuestions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(testID, userID)
	if s, ok := m.active[key]; ok && !s.Finalized() {
		return s, nil
	}

	s := m.open(*test, questions, userID)
	m.active[key] = s
	return s, nil
}

// Get returns the tracked session for (test, user), or nil.
func (m *Manager) Get(testID string, userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[sessionKey(testID, userID)]
}

// Evict drops the tracked session for (test, user). Called after an
// administrative reset so the next Start creates a fresh attempt.
func (m *Manager) Evict(testID string, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, sessionKey(testID, userID))
}

// open resumes the marked in-progress attempt or creates a new one.
// Persistence failures degrade to in-memory operation with a warning.
func (m *Manager) open(test model.Test, questions []model.Question, userID int64) *Session {
	s := &Session{
		test:      test,
		questions: questions,
		answers:   make(map[string]model.Answer),
		timeSpent: make(map[string]int),
		store:     m.store,
		grader:    m.grader,
		clock:     m.clock,
		done:      make(chan struct{}),
	}

	now := m.clock.Now()
	limit := test.TimeLimitMinutes * 60

	markerID, err := m.store.GetMarker(test.ID, userID)
	if err != nil {
		slog.Warn("session marker lookup failed, starting fresh", "test_id", test.ID, "user_id", userID, "error", err)
		markerID = ""
	}
	if markerID != "" {
		att, err := m.store.GetAttempt(markerID)
		if err != nil {
			slog.Warn("attempt lookup failed, starting fresh", "attempt_id", markerID, "error", err)
		} else if att != nil && att.Status == model.AttemptInProgress {
			s.attempt = *att
			for _, e := range att.Answers {
				if a := e.Answer(); a != nil {
					s.answers[e.QuestionID] = a
				}
				s.timeSpent[e.QuestionID] = e.TimeSpentSeconds
			}
			s.remaining = limit - int(now.Sub(att.StartedAt).Seconds())
			if s.remaining < 0 {
				s.remaining = 0
			}
			slog.Info("resumed attempt", "attempt_id", att.ID, "test_id", test.ID, "user_id", userID,
				"answers", len(att.Answers), "remaining_s", s.remaining)
			return s
		}
	}

	s.attempt = model.Attempt{
		ID:        uuid.NewString(),
		TestID:    test.ID,
		UserID:    userID,
		Status:    model.AttemptInProgress,
		StartedAt: now,
		Answers:   []model.AnswerEntry{},
	}
	s.remaining = limit

	if err := m.store.PutAttempt(s.attempt); err != nil {
		slog.Warn("failed to persist new attempt, continuing in memory", "attempt_id", s.attempt.ID, "error", err)
		s.persistWarn = true
	} else if err := m.store.SetMarker(test.ID, userID, s.attempt.ID); err != nil {
		slog.Warn("failed to set session marker", "attempt_id", s.attempt.ID, "error", err)
		s.persistWarn = true
	}
	slog.Info("started attempt", "attempt_id", s.attempt.ID, "test_id", test.ID, "user_id", userID)
	return s
}
