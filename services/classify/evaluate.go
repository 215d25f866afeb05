package classify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"prepengine/models"
)

const (
	// DefaultTolerance is applied to numeric answers that carry no explicit
	// tolerance.
	DefaultTolerance = 0.01

	// JEE Advanced marking for multi-choice questions: full marks for the
	// exact correct set, a fixed penalty per wrong identifier, nothing for a
	// partial subset.
	multiChoiceFullMarks    = 4
	multiChoiceWrongPenalty = 2
)

// Verdict is the outcome of scoring a single submitted answer.
type Verdict struct {
	IsCorrect bool
	Score     float64
	Status    models.AnswerStatus
}

// Evaluate scores a submitted answer against the question's answer spec.
// An empty submission is always unattempted with score 0, regardless of the
// variant or negative marking. Parse failures on numeric/integer variants
// count as incorrect; they never raise.
func Evaluate(q *models.Question, submitted string) Verdict {
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return Verdict{Status: models.StatusUnattempted}
	}

	switch q.Variant {
	case models.VariantMultiChoice:
		return evaluateMultiChoice(q, submitted)
	case models.VariantNumeric:
		return verdictFor(q, evaluateNumeric(submitted, q.Answer.NumericTarget, q.Answer.Tolerance))
	case models.VariantInteger:
		return verdictFor(q, evaluateInteger(submitted, q.Answer.IntegerTarget))
	case models.VariantTextFill:
		return verdictFor(q, normalizeText(submitted) == normalizeText(q.Answer.TextTarget))
	default: // single choice
		return verdictFor(q, evaluateSingleChoice(submitted, q.Answer.CorrectOptions))
	}
}

// verdictFor applies the question's own marks / negative marks to a plain
// right-or-wrong outcome.
func verdictFor(q *models.Question, correct bool) Verdict {
	if correct {
		return Verdict{IsCorrect: true, Score: q.Marks, Status: models.StatusCorrect}
	}
	return Verdict{Score: -q.NegativeMarks, Status: models.StatusIncorrect}
}

func evaluateSingleChoice(submitted string, correctOptions []string) bool {
	if len(correctOptions) == 0 {
		return false
	}
	return strings.EqualFold(submitted, correctOptions[0])
}

// evaluateMultiChoice applies the fixed +4 / -2 per wrong / 0 partial scheme.
// The submitted string carries comma-separated identifiers.
func evaluateMultiChoice(q *models.Question, submitted string) Verdict {
	selected := splitIdentifiers(submitted)
	if len(selected) == 0 {
		return Verdict{Status: models.StatusUnattempted}
	}

	correct := lo.Map(q.Answer.CorrectOptions, func(id string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(id))
	})

	wrong := lo.Without(selected, correct...)
	if len(wrong) > 0 {
		return Verdict{
			Score:  -float64(multiChoiceWrongPenalty * len(wrong)),
			Status: models.StatusIncorrect,
		}
	}
	if len(selected) == len(correct) {
		return Verdict{IsCorrect: true, Score: multiChoiceFullMarks, Status: models.StatusCorrect}
	}
	// Proper non-empty subset of the correct set: no credit, no penalty.
	return Verdict{Status: models.StatusIncorrect}
}

func evaluateNumeric(submitted string, target, tolerance float64) bool {
	value, err := strconv.ParseFloat(submitted, 64)
	if err != nil {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	diff := value - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// evaluateInteger requires a strict integer literal: "7" matches 7, "7.0"
// is a parse failure and therefore incorrect.
func evaluateInteger(submitted string, target int64) bool {
	value, err := strconv.ParseInt(submitted, 10, 64)
	if err != nil {
		return false
	}
	return value == target
}

// splitIdentifiers parses a comma-separated identifier list, uppercased,
// deduplicated and sorted.
func splitIdentifiers(submitted string) []string {
	parts := strings.Split(submitted, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			ids = append(ids, p)
		}
	}
	ids = lo.Uniq(ids)
	sort.Strings(ids)
	return ids
}

// normalizeText lowercases and collapses runs of whitespace so fill-in-blank
// answers compare on words, not formatting.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
