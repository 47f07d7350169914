package model

import "time"

// ResultsExport is the top-level JSON structure for attempt result export.
type ResultsExport struct {
	ExportedAt time.Time     `json:"exported_at"`
	Tests      []TestResults `json:"tests"`
}

// TestResults groups all finalized attempts for one test. The title is
// flattened to a single language for downstream spreadsheets.
type TestResults struct {
	TestID           string          `json:"test_id"`
	Title            string          `json:"title"`
	PassScorePercent int             `json:"pass_score_percent"`
	Attempts         []AttemptResult `json:"attempts"`
}

// AttemptResult holds one trainee's attempt data for export.
type AttemptResult struct {
	AttemptID       string        `json:"attempt_id"`
	Username        string        `json:"username"`
	DisplayName     string        `json:"display_name"`
	Status          AttemptStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
	Score           int           `json:"score"`
	Passed          bool          `json:"passed"`
	Answers         []AnswerEntry `json:"answers"`
}
