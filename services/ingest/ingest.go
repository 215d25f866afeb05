package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"prepengine/models"
	"prepengine/services/classify"
)

// RawOption is one choice as it appears in the exam dumps.
type RawOption struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
}

// RawQuestion is the wire shape of a question record in the source dumps.
// Field names follow the dump format, not our internal model.
type RawQuestion struct {
	QuestionID     string      `json:"question_id"`
	Content        string      `json:"content"`
	Options        []RawOption `json:"options"`
	CorrectOptions []string    `json:"correct_options"`
	CorrectValue   string      `json:"correct_value"`
	Tolerance      float64     `json:"tolerance"`
	Subject        string      `json:"subject"`
	ChapterGroup   string      `json:"chapterGroup"`
	Chapter        string      `json:"chapter"`
	TopicName      string      `json:"topicName"`
	Topic          string      `json:"topic"`
	Marks          float64     `json:"marks"`
	NegMarks       *float64    `json:"negMarks"`
	Type           string      `json:"type"`
	Explanation    string      `json:"explanation"`
	Difficulty     string      `json:"difficulty"`
	Comprehension  string      `json:"comprehension"`
	Year           int         `json:"year"`
	Hints          []string    `json:"hints"`
}

var (
	lineBreakPattern  = regexp.MustCompile(`<br\s*/?>|\\n|\n`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize turns one raw dump record into a canonical question for the
// given exam type. Records missing an id, content or answer are rejected.
func Normalize(raw RawQuestion, exam models.ExamType) (*models.Question, error) {
	id := strings.TrimSpace(raw.QuestionID)
	if id == "" {
		return nil, fmt.Errorf("record has no question_id")
	}

	content := cleanText(raw.Content)
	if content == "" {
		return nil, fmt.Errorf("question %s has no content", id)
	}

	options := make([]models.Option, 0, len(raw.Options))
	for i, opt := range raw.Options {
		text := cleanText(opt.Content)
		if text == "" {
			continue
		}
		identifier := strings.ToUpper(strings.TrimSpace(opt.Identifier))
		if identifier == "" {
			identifier = string(rune('A' + i))
		}
		options = append(options, models.Option{ID: identifier, Text: text})
	}

	correct := lo.Map(raw.CorrectOptions, func(o string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(o))
	})
	correct = lo.Compact(correct)

	variant, hints := classify.Detect(classify.Input{
		DeclaredType:     raw.Type,
		Content:          content,
		OptionCount:      len(options),
		CorrectCount:     len(correct),
		HasComprehension: strings.TrimSpace(raw.Comprehension) != "",
	})

	answer, err := buildAnswer(id, variant, correct, raw)
	if err != nil {
		return nil, err
	}

	chapter := strings.TrimSpace(raw.Chapter)
	if chapter == "" {
		chapter = strings.TrimSpace(raw.ChapterGroup)
	}
	topic := strings.TrimSpace(raw.TopicName)
	if topic == "" {
		topic = strings.TrimSpace(raw.Topic)
	}
	if topic == "" {
		topic = chapter
	}

	marks := raw.Marks
	if marks <= 0 {
		marks = 4
	}
	negMarks := 1.0
	if raw.NegMarks != nil {
		negMarks = *raw.NegMarks
	}

	return &models.Question{
		ID:              id,
		Content:         content,
		Options:         options,
		Answer:          answer,
		Subject:         NormalizeSubject(raw.Subject),
		Chapter:         chapter,
		Topic:           topic,
		Difficulty:      normalizeDifficulty(raw.Difficulty),
		Marks:           marks,
		NegativeMarks:   negMarks,
		Variant:         variant,
		Hints:           hints,
		ExamType:        exam,
		Year:            raw.Year,
		Explanation:     cleanText(raw.Explanation),
		ContentHash:     contentHash(content),
		ComplexityScore: complexityScore(content, options),
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// NormalizeBatch converts a dump slice, skipping and logging bad records.
func NormalizeBatch(raws []RawQuestion, exam models.ExamType) []*models.Question {
	questions := make([]*models.Question, 0, len(raws))
	for _, raw := range raws {
		q, err := Normalize(raw, exam)
		if err != nil {
			log.Printf("[WARN] Skipping raw record: %v", err)
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

func buildAnswer(id string, variant models.Variant, correct []string, raw RawQuestion) (models.AnswerSpec, error) {
	switch variant {
	case models.VariantSingleChoice, models.VariantMultiChoice:
		if len(correct) == 0 {
			return models.AnswerSpec{}, fmt.Errorf("question %s has no correct options", id)
		}
		return models.AnswerSpec{CorrectOptions: correct}, nil

	case models.VariantNumeric:
		value := answerValue(correct, raw.CorrectValue)
		target, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return models.AnswerSpec{}, fmt.Errorf("question %s has non-numeric answer %q", id, value)
		}
		return models.AnswerSpec{NumericTarget: target, Tolerance: raw.Tolerance}, nil

	case models.VariantInteger:
		value := answerValue(correct, raw.CorrectValue)
		target, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return models.AnswerSpec{}, fmt.Errorf("question %s has non-integer answer %q", id, value)
		}
		return models.AnswerSpec{IntegerTarget: target}, nil

	case models.VariantTextFill:
		value := answerValue(correct, raw.CorrectValue)
		if value == "" {
			return models.AnswerSpec{}, fmt.Errorf("question %s has no answer text", id)
		}
		return models.AnswerSpec{TextTarget: value}, nil
	}
	return models.AnswerSpec{}, fmt.Errorf("question %s has unknown variant %s", id, variant)
}

// answerValue prefers the dedicated value field, falling back to the first
// correct-options entry for dumps that reuse it for free-response answers.
func answerValue(correct []string, correctValue string) string {
	if v := strings.TrimSpace(correctValue); v != "" {
		return v
	}
	if len(correct) > 0 {
		return correct[0]
	}
	return ""
}

// cleanText strips line breaks and collapses runs of whitespace.
func cleanText(text string) string {
	text = lineBreakPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeSubject maps dump subject spellings onto canonical names.
func NormalizeSubject(subject string) string {
	switch strings.ToLower(strings.TrimSpace(subject)) {
	case "mathematics", "math", "maths":
		return "Mathematics"
	case "physics":
		return "Physics"
	case "chemistry":
		return "Chemistry"
	case "biology", "bio":
		return "Biology"
	default:
		return titleCase(strings.TrimSpace(subject))
	}
}

func normalizeDifficulty(difficulty string) models.Difficulty {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "easy":
		return models.DifficultyEasy
	case "hard":
		return models.DifficultyHard
	default:
		return models.DifficultyMedium
	}
}

// complexityScore grades a question 0..5 from length, mathematical content
// and option verbosity. Selection buckets questions by this score.
func complexityScore(content string, options []models.Option) int {
	score := 0

	if len(content) > 200 {
		score += 2
	} else if len(content) > 100 {
		score += 1
	}

	if strings.Contains(content, "$") || strings.Contains(strings.ToLower(content), "equation") {
		score += 2
	}

	if len(options) > 0 {
		total := 0
		for _, opt := range options {
			total += len(opt.Text)
		}
		if total/len(options) > 50 {
			score += 1
		}
	}

	if score > 5 {
		score = 5
	}
	return score
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func contentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
