package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEvaluated SessionStatus = "evaluated"
)

// SelectedQuestion pairs a question with the provenance tag recorded by the
// selector (weak_topic_<topic>, mistake_pattern_<topic>, general_coverage).
type SelectedQuestion struct {
	Question        *Question `json:"question"`
	SelectionReason string    `json:"selection_reason"`
}

// TestSession is created by the selector and transitions to evaluated exactly
// once.
type TestSession struct {
	ID        string             `json:"test_id"`
	UserID    string             `json:"user_id"`
	ExamType  ExamType           `json:"exam_type"`
	Subjects  []string           `json:"subjects"`
	Questions []SelectedQuestion `json:"questions"`
	CreatedAt time.Time          `json:"created_at"`
	Status    SessionStatus      `json:"status"`
}

// NoRepetitionGuarantee is returned with every generated test so callers can
// verify the lifetime non-repetition invariant held.
type NoRepetitionGuarantee struct {
	TotalQuestions  int  `json:"total_questions"`
	UniqueQuestions int  `json:"unique_questions"`
	PreviouslySeen  int  `json:"previously_seen"`
	RepetitionFree  bool `json:"repetition_free"`
}

type AnswerStatus string

const (
	StatusCorrect     AnswerStatus = "correct"
	StatusIncorrect   AnswerStatus = "incorrect"
	StatusUnattempted AnswerStatus = "unattempted"
)

type QuestionResult struct {
	QuestionNumber  int          `json:"question_number"`
	QuestionID      string       `json:"question_id"`
	Subject         string       `json:"subject"`
	Chapter         string       `json:"chapter"`
	Topic           string       `json:"topic"`
	UserAnswer      string       `json:"user_answer"`
	CorrectAnswer   string       `json:"correct_answer"`
	IsCorrect       bool         `json:"is_correct"`
	Score           float64      `json:"score"`
	Status          AnswerStatus `json:"status"`
	SelectionReason string       `json:"selection_reason"`
}

// Rollup accumulates correct/total counts for one chapter or topic key
// within a single evaluation.
type Rollup struct {
	Subject string `json:"subject"`
	Chapter string `json:"chapter"`
	Topic   string `json:"topic,omitempty"`
	Total   int    `json:"total"`
	Correct int    `json:"correct"`
}

type ScoreSummary struct {
	TotalScore       float64 `json:"total_score"`
	MaxPossibleScore float64 `json:"max_possible_score"`
	Percentage       float64 `json:"percentage"`
}

type AttemptSummary struct {
	Correct     int `json:"correct"`
	Incorrect   int `json:"incorrect"`
	Unattempted int `json:"unattempted"`
	Total       int `json:"total"`
}

// EvaluationResult is ephemeral: produced by the evaluation engine, folded
// into the profile, then handed to the result store.
type EvaluationResult struct {
	UserID             string             `json:"user_id"`
	TestID             string             `json:"test_id"`
	Score              ScoreSummary       `json:"score"`
	Summary            AttemptSummary     `json:"summary"`
	ChapterPerformance map[string]*Rollup `json:"chapter_performance"`
	TopicPerformance   map[string]*Rollup `json:"topic_performance"`
	DetailedResults    []QuestionResult   `json:"detailed_results"`
	MistakeAnalysis    []MistakeRecord    `json:"mistake_analysis"`
	Insights           []string           `json:"intelligence_insights"`
	CompletedAt        time.Time          `json:"completed_at"`
}
