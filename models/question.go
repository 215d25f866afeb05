package models

import (
	"strings"
	"time"
)

type ExamType string

const (
	ExamJEEMain     ExamType = "JEE_MAIN"
	ExamJEEAdvanced ExamType = "JEE_ADVANCED"
	ExamNEET        ExamType = "NEET"
	ExamBITSAT      ExamType = "BITSAT"
)

// AllExamTypes lists every exam type the question bank keeps a namespace for.
var AllExamTypes = []ExamType{ExamJEEMain, ExamJEEAdvanced, ExamNEET, ExamBITSAT}

// ParseExamType matches an exam name case-insensitively. An empty input
// defaults to JEE_MAIN.
func ParseExamType(s string) (ExamType, bool) {
	if strings.TrimSpace(s) == "" {
		return ExamJEEMain, true
	}
	candidate := ExamType(strings.ToUpper(strings.TrimSpace(s)))
	for _, e := range AllExamTypes {
		if e == candidate {
			return e, true
		}
	}
	return "", false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Variant is the answer-format tag of a question. It decides which marking
// rule applies when the question is scored.
type Variant string

const (
	VariantSingleChoice Variant = "single_choice"
	VariantMultiChoice  Variant = "multi_choice"
	VariantNumeric      Variant = "numeric"
	VariantInteger      Variant = "integer"
	VariantTextFill     Variant = "text_fill"
)

// PresentationHint flags affect how a question is rendered but never how it
// is scored.
type PresentationHint string

const (
	HintPassageBased    PresentationHint = "passage_based"
	HintMatrixMatch     PresentationHint = "matrix_match"
	HintAssertionReason PresentationHint = "assertion_reason"
	HintImageBased      PresentationHint = "image_based"
)

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnswerSpec carries the correct answer for whichever variant the question
// has. Only the fields for the question's variant are populated.
type AnswerSpec struct {
	CorrectOptions []string `json:"correct_options,omitempty"` // single/multi choice identifiers
	NumericTarget  float64  `json:"numeric_target,omitempty"`
	Tolerance      float64  `json:"tolerance,omitempty"`
	IntegerTarget  int64    `json:"integer_target,omitempty"`
	TextTarget     string   `json:"text_target,omitempty"` // free text / fill-in-blank
}

// Question is the canonical, read-only record. Built once at the ingestion
// boundary; the embedding vector lives in the question bank, not here.
type Question struct {
	ID              string             `json:"question_id"`
	Content         string             `json:"content"`
	Options         []Option           `json:"options"`
	Answer          AnswerSpec         `json:"answer"`
	Subject         string             `json:"subject"`
	Chapter         string             `json:"chapter"`
	Topic           string             `json:"topic"`
	Difficulty      Difficulty         `json:"difficulty"`
	Marks           float64            `json:"marks"`
	NegativeMarks   float64            `json:"negative_marks"`
	Variant         Variant            `json:"variant"`
	Hints           []PresentationHint `json:"hints,omitempty"`
	ExamType        ExamType           `json:"exam_type"`
	Year            int                `json:"year,omitempty"`
	Explanation     string             `json:"explanation,omitempty"`
	ContentHash     string             `json:"content_hash"`
	ComplexityScore int                `json:"complexity_score"`
	CreatedAt       time.Time          `json:"created_at"`
}

// FreeResponse reports whether the variant takes typed input instead of
// option identifiers.
func (v Variant) FreeResponse() bool {
	switch v {
	case VariantNumeric, VariantInteger, VariantTextFill:
		return true
	}
	return false
}
