package grading

import (
	"testing"

	"github.com/delphitvs/trainhub/internal/model"
)

func singleQ(id string, correct int) model.Question {
	return model.Question{
		ID:           id,
		Kind:         model.KindSingle,
		Options:      model.LocalizedOptions{"en": {"a", "b", "c"}},
		CorrectIndex: correct,
	}
}

func multiQ(id string, correct ...int) model.Question {
	return model.Question{
		ID:             id,
		Kind:           model.KindMulti,
		Options:        model.LocalizedOptions{"en": {"a", "b", "c", "d"}},
		CorrectIndices: correct,
	}
}

func fillQ(id, reference string) model.Question {
	return model.Question{ID: id, Kind: model.KindFill, ReferenceAnswer: reference}
}

func TestGradeSingleChoice(t *testing.T) {
	g := New()
	q := singleQ("q1", 1)

	tests := []struct {
		name string
		ans  model.Answer
		want bool
	}{
		{"correct index", model.SingleChoice("1"), true},
		{"wrong index", model.SingleChoice("0"), false},
		{"missing answer", nil, false},
		{"kind mismatch", model.FreeText("1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Grade(q, tt.ans); got.Correct != tt.want {
				t.Errorf("Grade() correct = %v, want %v", got.Correct, tt.want)
			}
		})
	}
}

func TestGradeMultiChoice(t *testing.T) {
	g := New()
	q := multiQ("q1", 0, 1, 2)

	tests := []struct {
		name string
		ans  model.Answer
		want bool
	}{
		{"exact order", model.MultiChoice{"0", "1", "2"}, true},
		{"any order", model.MultiChoice{"2", "1", "0"}, true},
		{"missing selection", model.MultiChoice{"0", "1"}, false},
		{"extra selection", model.MultiChoice{"0", "1", "2", "3"}, false},
		{"wrong selection", model.MultiChoice{"0", "1", "3"}, false},
		{"empty", model.MultiChoice{}, false},
		{"missing answer", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Grade(q, tt.ans); got.Correct != tt.want {
				t.Errorf("Grade() correct = %v, want %v", got.Correct, tt.want)
			}
		})
	}
}

func TestGradeFill(t *testing.T) {
	g := New()
	q := fillQ("q1", "MSDS")

	tests := []struct {
		name string
		ans  model.Answer
		want bool
	}{
		{"case insensitive exact", model.FreeText("msds"), true},
		{"one edit", model.FreeText("MSDSS"), true},
		{"completely different", model.FreeText("completely different"), false},
		{"blank", model.FreeText(""), false},
		{"missing answer", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Grade(q, tt.ans); got.Correct != tt.want {
				t.Errorf("Grade() correct = %v, want %v", got.Correct, tt.want)
			}
		})
	}
}

func TestGradeCode(t *testing.T) {
	g := New()
	q := model.Question{ID: "q1", Kind: model.KindCode}

	out := g.Grade(q, model.FreeText("fmt.Println(42)"))
	if out.Correct {
		t.Error("code questions must never auto-grade correct")
	}
	if !out.NeedsReview {
		t.Error("code questions must be flagged for review")
	}
}

func TestAggregate(t *testing.T) {
	g := New()
	questions := []model.Question{
		singleQ("q1", 1),
		singleQ("q2", 0),
		multiQ("q3", 1, 2),
		fillQ("q4", "lockout"),
	}
	answers := map[string]model.Answer{
		"q1": model.SingleChoice("1"),
		"q2": model.SingleChoice("1"), // wrong
		"q3": model.MultiChoice{"2", "1"},
		"q4": model.FreeText("lockout"),
	}

	sum := g.Aggregate(questions, answers, 70)
	if sum.Score != 75 {
		t.Errorf("score = %d, want 75", sum.Score)
	}
	if !sum.Passed {
		t.Error("expected pass at threshold 70")
	}

	sum = g.Aggregate(questions, answers, 80)
	if sum.Passed {
		t.Error("expected fail at threshold 80")
	}
	if sum.Correct != 3 || sum.Gradable != 4 {
		t.Errorf("correct/gradable = %d/%d, want 3/4", sum.Correct, sum.Gradable)
	}
}

func TestAggregateExcludesCodeQuestions(t *testing.T) {
	g := New()
	questions := []model.Question{
		singleQ("q1", 0),
		{ID: "q2", Kind: model.KindCode},
	}
	answers := map[string]model.Answer{
		"q1": model.SingleChoice("0"),
		"q2": model.FreeText("package main"),
	}

	sum := g.Aggregate(questions, answers, 100)
	if sum.Score != 100 {
		t.Errorf("score = %d, want 100 (code excluded from denominator)", sum.Score)
	}
	if sum.NeedsReview != 1 {
		t.Errorf("needs review = %d, want 1", sum.NeedsReview)
	}
	if sum.Gradable != 1 {
		t.Errorf("gradable = %d, want 1", sum.Gradable)
	}
}

func TestAggregateUntouchedQuestionsCountWrong(t *testing.T) {
	g := New()
	questions := []model.Question{singleQ("q1", 0), singleQ("q2", 1)}
	answers := map[string]model.Answer{"q1": model.SingleChoice("0")}

	sum := g.Aggregate(questions, answers, 60)
	if sum.Score != 50 {
		t.Errorf("score = %d, want 50", sum.Score)
	}
	if sum.Passed {
		t.Error("expected fail")
	}
}

func TestAggregateAllCode(t *testing.T) {
	g := New()
	questions := []model.Question{{ID: "q1", Kind: model.KindCode}}

	sum := g.Aggregate(questions, nil, 70)
	if sum.Score != 0 || sum.Passed {
		t.Errorf("all-code test: score=%d passed=%v, want 0/false", sum.Score, sum.Passed)
	}
}
