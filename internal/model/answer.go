package model

// Answer is a submitted answer for a single question. It is a closed set of
// variants; graders type-switch on the concrete type rather than inspecting
// runtime shape.
type Answer interface {
	isAnswer()
}

// SingleChoice is a single-choice answer: the selected option index as a
// decimal string.
type SingleChoice string

// MultiChoice is a multi-choice answer: the selected option indices as
// decimal strings, in selection order. Grading is order-independent.
type MultiChoice []string

// FreeText is a free-form text answer, used for fill and code questions.
type FreeText string

func (SingleChoice) isAnswer() {}
func (MultiChoice) isAnswer()  {}
func (FreeText) isAnswer()     {}

// AnswerKind tags the serialized form of an Answer.
type AnswerKind string

const (
	AnswerSingle AnswerKind = "single"
	AnswerMulti  AnswerKind = "multi"
	AnswerText   AnswerKind = "text"
)

// AnswerEntry is the persisted form of one touched question in an attempt.
// Untouched questions have no entry.
type AnswerEntry struct {
	QuestionID       string     `json:"question_id"`
	Kind             AnswerKind `json:"kind"`
	Value            string     `json:"value,omitempty"`
	Values           []string   `json:"values,omitempty"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
}

// NewAnswerEntry builds the persisted form of an answer.
func NewAnswerEntry(questionID string, a Answer, timeSpentSeconds int) AnswerEntry {
	e := AnswerEntry{QuestionID: questionID, TimeSpentSeconds: timeSpentSeconds}
	switch v := a.(type) {
	case SingleChoice:
		e.Kind = AnswerSingle
		e.Value = string(v)
	case MultiChoice:
		e.Kind = AnswerMulti
		e.Values = append([]string(nil), v...)
	case FreeText:
		e.Kind = AnswerText
		e.Value = string(v)
	}
	return e
}

// Answer reconstructs the tagged variant from the persisted form.
// Unknown kinds yield nil, which graders treat as no answer.
func (e AnswerEntry) Answer() Answer {
	switch e.Kind {
	case AnswerSingle:
		return SingleChoice(e.Value)
	case AnswerMulti:
		return MultiChoice(append([]string(nil), e.Values...))
	case AnswerText:
		return FreeText(e.Value)
	}
	return nil
}
