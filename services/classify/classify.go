package classify

import (
	"strings"

	"prepengine/models"
)

// Input carries the raw signals the detector works from. DeclaredType, when
// present, is the most reliable signal and short-circuits content inspection.
type Input struct {
	DeclaredType     string
	Content          string
	OptionCount      int
	CorrectCount     int
	HasComprehension bool
}

// Detect determines a question's answer-format variant and presentation
// hints. Precedence when no explicit type metadata is present:
//  1. no options -> numeric, unless the content signals an integer answer
//  2. more than one correct identifier forces multi choice
//  3. fill-in-blank content cue -> text fill
//  4. default single choice
//
// Passage, assertion-reason, matrix-match and image cues only add
// presentation hints; they never change the marking rule.
func Detect(in Input) (models.Variant, []models.PresentationHint) {
	hints := detectHints(in)

	switch strings.ToLower(strings.TrimSpace(in.DeclaredType)) {
	case "mcq":
		if in.CorrectCount > 1 {
			return models.VariantMultiChoice, hints
		}
		return models.VariantSingleChoice, hints
	case "mcqm":
		return models.VariantMultiChoice, hints
	case "integer":
		return models.VariantInteger, hints
	case "numerical":
		return models.VariantNumeric, hints
	}

	content := strings.ToLower(in.Content)

	if in.OptionCount == 0 {
		if signalsInteger(content) {
			return models.VariantInteger, hints
		}
		return models.VariantNumeric, hints
	}

	if in.CorrectCount > 1 {
		return models.VariantMultiChoice, hints
	}

	if strings.Contains(content, "_____") || strings.Contains(content, "fill in the blank") {
		return models.VariantTextFill, hints
	}

	return models.VariantSingleChoice, hints
}

// detectHints checks structural cues in a fixed order: passage,
// assertion-reason, matrix-match, then images.
func detectHints(in Input) []models.PresentationHint {
	content := strings.ToLower(in.Content)
	var hints []models.PresentationHint

	if in.HasComprehension || strings.Contains(content, "passage") {
		hints = append(hints, models.HintPassageBased)
	}
	if strings.Contains(content, "assertion") && strings.Contains(content, "reason") {
		hints = append(hints, models.HintAssertionReason)
	}
	if (strings.Contains(content, "match") && strings.Contains(content, "column")) ||
		strings.Contains(content, "list i") {
		hints = append(hints, models.HintMatrixMatch)
	}
	if hasImages(in.Content) {
		hints = append(hints, models.HintImageBased)
	}

	return hints
}

func signalsInteger(content string) bool {
	for _, cue := range []string{"integer", "whole number", "find the value"} {
		if strings.Contains(content, cue) {
			return true
		}
	}
	return false
}

func hasImages(content string) bool {
	return strings.Contains(content, "<img") ||
		strings.Contains(content, "src=") ||
		strings.Contains(content, "data-orsrc=")
}
