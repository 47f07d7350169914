package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/delphitvs/trainhub/internal/model"
)

// GetProgress returns a user's progress in a module, or nil if none recorded.
func (s *Store) GetProgress(userID int64, moduleID string) (*model.UserProgress, error) {
	row := s.db.QueryRow(
		`SELECT user_id, module_id, completed_steps, last_accessed_at, completed_at
		 FROM user_progress WHERE user_id = ? AND module_id = ?`,
		userID, moduleID,
	)
	p, err := scanProgress(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProgressByUser returns all module progress records for a user.
func (s *Store) ListProgressByUser(userID int64) ([]model.UserProgress, error) {
	rows, err := s.db.Query(
		`SELECT user_id, module_id, completed_steps, last_accessed_at, completed_at
		 FROM user_progress WHERE user_id = ? ORDER BY module_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var progress []model.UserProgress
	for rows.Next() {
		p, err := scanProgress(rows.Scan)
		if err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

func scanProgress(scan func(...any) error) (model.UserProgress, error) {
	var p model.UserProgress
	var steps string
	var completed sql.NullTime
	if err := scan(&p.UserID, &p.ModuleID, &steps, &p.LastAccessedAt, &completed); err != nil {
		return p, err
	}
	if completed.Valid {
		t := completed.Time
		p.CompletedAt = &t
	}
	if err := fromJSON(steps, &p.CompletedSteps); err != nil {
		return p, fmt.Errorf("progress %d/%s: steps: %w", p.UserID, p.ModuleID, err)
	}
	return p, nil
}

// CompleteStep records a step completion. Re-completing a step refreshes the
// access time but does not duplicate the step. When every step in the module
// is completed the completion timestamp is set once and never cleared.
func (s *Store) CompleteStep(userID int64, m model.Module, stepID string) (*model.UserProgress, error) {
	p, err := s.GetProgress(userID, m.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if p == nil {
		p = &model.UserProgress{UserID: userID, ModuleID: m.ID}
	}
	found := false
	for _, id := range p.CompletedSteps {
		if id == stepID {
			found = true
			break
		}
	}
	if !found {
		p.CompletedSteps = append(p.CompletedSteps, stepID)
	}
	p.LastAccessedAt = now

	if p.CompletedAt == nil && len(p.CompletedSteps) >= len(m.Steps) {
		done := make(map[string]bool, len(p.CompletedSteps))
		for _, id := range p.CompletedSteps {
			done[id] = true
		}
		all := true
		for _, step := range m.Steps {
			if !done[step.ID] {
				all = false
				break
			}
		}
		if all {
			p.CompletedAt = &now
		}
	}

	if err := s.putProgress(*p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) putProgress(p model.UserProgress) error {
	steps, err := asJSON(p.CompletedSteps)
	if err != nil {
		return fmt.Errorf("progress %d/%s: %w", p.UserID, p.ModuleID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO user_progress (user_id, module_id, completed_steps, last_accessed_at, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, module_id) DO UPDATE SET
		   completed_steps = excluded.completed_steps,
		   last_accessed_at = excluded.last_accessed_at,
		   completed_at = excluded.completed_at`,
		p.UserID, p.ModuleID, steps, p.LastAccessedAt, p.CompletedAt,
	)
	return err
}
