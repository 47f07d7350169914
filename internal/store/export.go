package store

import (
	"fmt"
	"time"

	"github.com/delphitvs/trainhub/internal/model"
)

// ExportAllResults builds export-ready assessment results across all tests.
func (s *Store) ExportAllResults() (*model.ResultsExport, error) {
	tests, err := s.ListTests("")
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}

	export := &model.ResultsExport{ExportedAt: time.Now()}
	for _, t := range tests {
		attempts, err := s.ListAttemptsByTest(t.ID)
		if err != nil {
			return nil, fmt.Errorf("list attempts for %s: %w", t.ID, err)
		}

		tr := model.TestResults{
			TestID:           t.ID,
			Title:            t.Title.In("en"),
			PassScorePercent: t.PassScorePercent,
		}
		for _, a := range attempts {
			user, err := s.GetUserByID(a.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", a.UserID, err)
			}

			var username, displayName string
			if user != nil {
				username = user.Username
				displayName = user.DisplayName
			}

			tr.Attempts = append(tr.Attempts, model.AttemptResult{
				AttemptID:       a.ID,
				Username:        username,
				DisplayName:     displayName,
				Status:          a.Status,
				StartedAt:       a.StartedAt,
				FinishedAt:      a.FinishedAt,
				DurationSeconds: a.DurationSeconds,
				Score:           a.Score,
				Passed:          a.Passed,
				Answers:         a.Answers,
			})
		}
		export.Tests = append(export.Tests, tr)
	}

	return export, nil
}
