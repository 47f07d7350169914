package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/delphitvs/trainhub/internal/model"
)

// PutAttempt inserts or fully replaces an attempt record. Last write wins.
func (s *Store) PutAttempt(a model.Attempt) error {
	answers, err := asJSON(a.Answers)
	if err != nil {
		return fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO attempts (id, test_id, user_id, status, started_at, finished_at,
		   duration_seconds, answers, score, passed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, finished_at = excluded.finished_at,
		   duration_seconds = excluded.duration_seconds, answers = excluded.answers,
		   score = excluded.score, passed = excluded.passed`,
		a.ID, a.TestID, a.UserID, a.Status, a.StartedAt, a.FinishedAt,
		a.DurationSeconds, answers, a.Score, a.Passed,
	)
	return err
}

func scanAttempt(scan func(...any) error) (model.Attempt, error) {
	var a model.Attempt
	var answers string
	var finished sql.NullTime
	if err := scan(&a.ID, &a.TestID, &a.UserID, &a.Status, &a.StartedAt, &finished,
		&a.DurationSeconds, &answers, &a.Score, &a.Passed); err != nil {
		return a, err
	}
	if finished.Valid {
		t := finished.Time
		a.FinishedAt = &t
	}
	if err := fromJSON(answers, &a.Answers); err != nil {
		return a, fmt.Errorf("attempt %s: answers: %w", a.ID, err)
	}
	return a, nil
}

const attemptColumns = `id, test_id, user_id, status, started_at, finished_at,
	duration_seconds, answers, score, passed`

// GetAttempt returns an attempt by ID, or nil if absent.
func (s *Store) GetAttempt(id string) (*model.Attempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAttempt removes an attempt and any marker pointing at it.
func (s *Store) DeleteAttempt(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM attempts WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM session_markers WHERE attempt_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAttemptsByUser returns a user's attempts, newest first.
func (s *Store) ListAttemptsByUser(userID int64) ([]model.Attempt, error) {
	return s.listAttempts(`SELECT `+attemptColumns+` FROM attempts WHERE user_id = ? ORDER BY started_at DESC`, userID)
}

// ListAttemptsByTest returns all attempts for a test, newest first.
func (s *Store) ListAttemptsByTest(testID string) ([]model.Attempt, error) {
	return s.listAttempts(`SELECT `+attemptColumns+` FROM attempts WHERE test_id = ? ORDER BY started_at DESC`, testID)
}

// ListAttempts returns every attempt, newest first.
func (s *Store) ListAttempts() ([]model.Attempt, error) {
	return s.listAttempts(`SELECT ` + attemptColumns + ` FROM attempts ORDER BY started_at DESC`)
}

func (s *Store) listAttempts(query string, args ...any) ([]model.Attempt, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// MarkAbandoned flips stale in-progress attempts to abandoned. Attempts
// started before the cutoff are considered dead; their answers are kept for
// review. Returns the number of attempts updated.
func (s *Store) MarkAbandoned(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE attempts SET status = ? WHERE status = ? AND started_at < ?`,
		model.AttemptAbandoned, model.AttemptInProgress, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetMarker returns the attempt ID marked as the open session for
// (test, user), or empty string if none.
func (s *Store) GetMarker(testID string, userID int64) (string, error) {
	var attemptID string
	err := s.db.QueryRow(
		`SELECT attempt_id FROM session_markers WHERE test_id = ? AND user_id = ?`,
		testID, userID,
	).Scan(&attemptID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return attemptID, err
}

// SetMarker records the open attempt for (test, user). The primary key
// guarantees at most one marker per pair.
func (s *Store) SetMarker(testID string, userID int64, attemptID string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_markers (test_id, user_id, attempt_id) VALUES (?, ?, ?)
		 ON CONFLICT(test_id, user_id) DO UPDATE SET attempt_id = excluded.attempt_id`,
		testID, userID, attemptID,
	)
	return err
}

// ClearMarker removes the open-session marker for (test, user).
func (s *Store) ClearMarker(testID string, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM session_markers WHERE test_id = ? AND user_id = ?`,
		testID, userID,
	)
	return err
}
