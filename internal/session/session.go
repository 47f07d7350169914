package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/delphitvs/trainhub/internal/grading"
	"github.com/delphitvs/trainhub/internal/model"
)

// Session is one in-flight test attempt. All methods are safe for
// concurrent use; a single mutex serializes answer capture against the tick
// and autosave loops so no updates are lost.
type Session struct {
	mu        sync.Mutex
	test      model.Test
	questions []model.Question
	attempt   model.Attempt
	answers   map[string]model.Answer
	timeSpent map[string]int
	remaining int
	paused    bool

	finalized  bool
	submitting bool
	running    bool

	// persistWarn is set when the last persistence operation failed; the
	// stored record may lag the in-memory state.
	persistWarn bool

	store  AttemptStore
	grader *grading.Grader
	clock  Clock
	done   chan struct{}
}

// State is a point-in-time snapshot of a session for display. While the
// attempt is in progress the surrounding UI must warn before navigating
// away, since changes after the last autosave exist only in memory.
type State struct {
	Attempt          model.Attempt    `json:"attempt"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Paused           bool             `json:"paused"`
	Answered         int              `json:"answered"`
	Total            int              `json:"total"`
	Finalized        bool             `json:"finalized"`
	StaleStorage     bool             `json:"stale_storage,omitempty"`
	Summary          *grading.Summary `json:"summary,omitempty"`
}

// Test returns the test definition this session runs against.
func (s *Session) Test() model.Test { return s.test }

// Questions returns the resolved questions in presentation order.
func (s *Session) Questions() []model.Question { return s.questions }

// Attempt returns a snapshot of the attempt record, including the current
// in-memory answers.
func (s *Session) Attempt() model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	att := s.attempt
	att.Answers = s.entriesLocked()
	return att
}

// Finalized reports whether the attempt has been submitted.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// State returns a display snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	att := s.attempt
	att.Answers = s.entriesLocked()
	st := State{
		Attempt:          att,
		RemainingSeconds: s.remaining,
		Paused:           s.paused,
		Answered:         len(s.answers),
		Total:            len(s.questions),
		Finalized:        s.finalized,
		StaleStorage:     s.persistWarn,
	}
	if s.finalized {
		sum := s.grader.Aggregate(s.questions, s.answers, s.test.PassScorePercent)
		st.Summary = &sum
	}
	return st
}

// RecordAnswer stores or overwrites the working-memory answer for a
// question. It does not persist; autosave picks the change up.
func (s *Session) RecordAnswer(questionID string, ans model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if !s.hasQuestionLocked(questionID) {
		return fmt.Errorf("record answer %s: %w", questionID, ErrUnknownQuestion)
	}
	s.answers[questionID] = ans
	return nil
}

// RecordTimeOnQuestion accumulates diagnostic per-question time. Callers
// invoke it when navigation leaves a question, with the wall-clock delta
// since the question became current.
func (s *Session) RecordTimeOnQuestion(questionID string, deltaSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if !s.hasQuestionLocked(questionID) {
		return fmt.Errorf("record time %s: %w", questionID, ErrUnknownQuestion)
	}
	if deltaSeconds > 0 {
		s.timeSpent[questionID] += deltaSeconds
	}
	return nil
}

// Pause suspends the countdown. Autosave keeps running while paused.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume restarts the countdown.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the countdown is suspended.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Tick advances the countdown by one second. A no-op while paused or after
// finalization. When the countdown reaches zero the attempt auto-submits
// exactly once.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.paused {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		if _, err := s.submitLocked(true); err != nil {
			slog.Warn("auto-submit persisted with errors", "attempt_id", s.attempt.ID, "error", err)
		}
	}
}

// Autosave flushes the in-memory answers to the persisted attempt record.
// Idempotent: it never touches status, score, or timestamps. If the stored
// record was reset or already completed the flush is skipped. Persistence
// failures are non-fatal; the session keeps operating in memory.
func (s *Session) Autosave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil
	}
	stored, err := s.store.GetAttempt(s.attempt.ID)
	if err != nil {
		s.persistWarn = true
		return fmt.Errorf("%w: read: %v", ErrPersist, err)
	}
	if stored == nil || stored.Status != model.AttemptInProgress {
		// Reset or finalized out-of-band; nothing to update.
		return nil
	}
	stored.Answers = s.entriesLocked()
	if err := s.store.PutAttempt(*stored); err != nil {
		s.persistWarn = true
		return fmt.Errorf("%w: write: %v", ErrPersist, err)
	}
	s.persistWarn = false
	return nil
}

// Submit finalizes the attempt: grades every question, fixes score, verdict,
// finish time, and wall-clock duration, persists the record, and clears the
// session marker. Idempotent: repeated calls return the already-finalized
// attempt. The returned attempt is authoritative even when the final write
// fails, in which case the error wraps ErrPersist.
func (s *Session) Submit(autoSubmit bool) (model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked(autoSubmit)
}

func (s *Session) submitLocked(autoSubmit bool) (model.Attempt, error) {
	if s.finalized || s.submitting {
		return s.attempt, nil
	}
	s.submitting = true

	now := s.clock.Now()
	sum := s.grader.Aggregate(s.questions, s.answers, s.test.PassScorePercent)

	s.attempt.Answers = s.entriesLocked()
	s.attempt.Score = sum.Score
	s.attempt.Passed = sum.Passed
	s.attempt.FinishedAt = &now
	s.attempt.DurationSeconds = int(now.Sub(s.attempt.StartedAt).Seconds())
	s.attempt.Status = model.AttemptCompleted
	s.finalized = true
	close(s.done)

	var err error
	if perr := s.store.PutAttempt(s.attempt); perr != nil {
		s.persistWarn = true
		slog.Warn("failed to persist final attempt, in-memory result is authoritative",
			"attempt_id", s.attempt.ID, "error", perr)
		err = fmt.Errorf("%w: final write: %v", ErrPersist, perr)
	}
	if cerr := s.store.ClearMarker(s.test.ID, s.attempt.UserID); cerr != nil {
		slog.Warn("failed to clear session marker", "attempt_id", s.attempt.ID, "error", cerr)
	}

	slog.Info("attempt finalized", "attempt_id", s.attempt.ID, "test_id", s.test.ID,
		"user_id", s.attempt.UserID, "auto", autoSubmit, "score", sum.Score, "passed", sum.Passed)
	return s.attempt, err
}

// Summary re-grades the finalized attempt for display. Valid only after
// finalization; returns nil otherwise.
func (s *Session) Summary() *grading.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finalized {
		return nil
	}
	sum := s.grader.Aggregate(s.questions, s.answers, s.test.PassScorePercent)
	return &sum
}

// Run drives the countdown and autosave tickers until the context is
// cancelled or the attempt finalizes. At most one Run loop is active per
// session.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running || s.finalized {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	tick := time.NewTicker(TickInterval)
	defer tick.Stop()
	save := time.NewTicker(AutosaveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-tick.C:
			s.Tick()
		case <-save.C:
			if err := s.Autosave(); err != nil {
				slog.Warn("autosave failed", "attempt_id", s.attempt.ID, "error", err)
			}
		}
	}
}

// entriesLocked builds the persisted answer entries in presentation order.
func (s *Session) entriesLocked() []model.AnswerEntry {
	entries := make([]model.AnswerEntry, 0, len(s.answers))
	for _, q := range s.questions {
		a, ok := s.answers[q.ID]
		if !ok {
			// Time may have been tracked on a question never answered.
			if spent := s.timeSpent[q.ID]; spent > 0 {
				entries = append(entries, model.AnswerEntry{QuestionID: q.ID, TimeSpentSeconds: spent})
			}
			continue
		}
		entries = append(entries, model.NewAnswerEntry(q.ID, a, s.timeSpent[q.ID]))
	}
	return entries
}

func (s *Session) hasQuestionLocked(questionID string) bool {
	for _, q := range s.questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}
