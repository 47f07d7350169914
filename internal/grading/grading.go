// Package grading decides answer correctness and reduces graded answers
// into a score and pass/fail verdict.
package grading

import (
	"sort"
	"strconv"

	"github.com/delphitvs/trainhub/internal/model"
	"github.com/delphitvs/trainhub/internal/textmatch"
)

// Outcome is the result of grading a single answer.
type Outcome struct {
	// Correct reports whether the answer was auto-graded as correct.
	Correct bool
	// NeedsReview is set for question kinds that are never auto-graded
	// (code); it distinguishes "not gradable" from "graded incorrect".
	NeedsReview bool
}

// Option configures a Grader.
type Option func(*Grader)

// WithBaseThreshold overrides the minimum edit distance tolerated when
// fuzzy-matching fill answers.
func WithBaseThreshold(n int) Option {
	return func(g *Grader) { g.baseThreshold = n }
}

// Grader grades answers against their questions.
type Grader struct {
	baseThreshold int
}

// New creates a Grader with default settings.
func New(opts ...Option) *Grader {
	g := &Grader{baseThreshold: textmatch.DefaultBaseThreshold}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Grade decides the outcome for one question. A nil or kind-mismatched
// answer is incorrect, not an error.
func (g *Grader) Grade(q model.Question, ans model.Answer) Outcome {
	switch q.Kind {
	case model.KindSingle:
		if a, ok := ans.(model.SingleChoice); ok {
			return Outcome{Correct: string(a) == strconv.Itoa(q.CorrectIndex)}
		}
	case model.KindMulti:
		if a, ok := ans.(model.MultiChoice); ok {
			return Outcome{Correct: indexSetsEqual(a, q.CorrectIndices)}
		}
	case model.KindFill:
		if a, ok := ans.(model.FreeText); ok {
			return Outcome{Correct: textmatch.FuzzyMatchThreshold(string(a), q.ReferenceAnswer, g.baseThreshold)}
		}
	case model.KindCode:
		return Outcome{NeedsReview: true}
	}
	return Outcome{}
}

// indexSetsEqual compares submitted option-index strings with correct
// indices as sorted string sets. No partial credit: any missing or extra
// selection is wrong.
func indexSetsEqual(submitted []string, correct []int) bool {
	if len(submitted) != len(correct) {
		return false
	}
	sub := append([]string(nil), submitted...)
	cor := make([]string, len(correct))
	for i, idx := range correct {
		cor[i] = strconv.Itoa(idx)
	}
	sort.Strings(sub)
	sort.Strings(cor)
	for i := range sub {
		if sub[i] != cor[i] {
			return false
		}
	}
	return true
}

// Summary is the aggregate result of grading every question in a test.
type Summary struct {
	// Score is the percentage of gradable questions answered correctly,
	// rounded to the nearest integer.
	Score int `json:"score"`
	// Passed reports whether Score met the test's pass threshold.
	Passed bool `json:"passed"`
	// Correct is the number of correctly answered gradable questions.
	Correct int `json:"correct"`
	// Gradable is the number of auto-gradable questions (total minus code).
	Gradable int `json:"gradable"`
	// NeedsReview counts questions excluded from automatic scoring.
	NeedsReview int `json:"needs_review"`
}

// Aggregate grades every question and computes the percentage score and
// verdict. Code-kind questions are excluded from the denominator and
// counted in NeedsReview. Questions without an answer entry are graded
// incorrect. The caller guarantees len(questions) > 0 (enforced at session
// start); a test with only code questions scores 0.
func (g *Grader) Aggregate(questions []model.Question, answers map[string]model.Answer, passScorePercent int) Summary {
	var sum Summary
	for _, q := range questions {
		out := g.Grade(q, answers[q.ID])
		if out.NeedsReview {
			sum.NeedsReview++
			continue
		}
		sum.Gradable++
		if out.Correct {
			sum.Correct++
		}
	}
	if sum.Gradable > 0 {
		sum.Score = int(float64(100)*float64(sum.Correct)/float64(sum.Gradable) + 0.5)
	}
	sum.Passed = sum.Score >= passScorePercent
	return sum
}
