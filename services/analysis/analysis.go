package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/invopop/jsonschema"

	"prepengine/models"
)

// DefaultTimeout bounds the collaborator call; past it the deterministic
// fallback is returned instead.
const DefaultTimeout = 50 * time.Second

const analysisToolName = "record_analysis"

// Summary is the structured view of one evaluated test handed to the
// collaborator.
type Summary struct {
	UserID             string                    `json:"user_id"`
	TestID             string                    `json:"test_id"`
	Score              models.ScoreSummary       `json:"score"`
	Attempts           models.AttemptSummary     `json:"summary"`
	SubjectPerformance map[string]*models.Rollup `json:"subject_performance"`
	ChapterPerformance map[string]*models.Rollup `json:"chapter_performance"`
	DetailedMistakes   []models.MistakeRecord    `json:"detailed_mistakes"`
	Insights           []string                  `json:"intelligence_insights"`
}

// SubjectAdvice is the per-subject slice of an analysis.
type SubjectAdvice struct {
	Accuracy        float64  `json:"accuracy" jsonschema:"description=Subject accuracy percentage 0-100"`
	Recommendations []string `json:"recommendations" jsonschema:"description=Two to three concrete study recommendations"`
}

// Analysis is the collaborator's structured verdict. GeneratedBy is the model
// name, or "fallback" when the collaborator could not be reached in time.
type Analysis struct {
	PerformanceLevel string                   `json:"performance_level" jsonschema:"required,description=One of Excellent Good Fair Needs Improvement"`
	OverallSummary   string                   `json:"overall_summary" jsonschema:"required,description=Two or three sentences on the overall result"`
	SubjectAnalysis  map[string]SubjectAdvice `json:"subject_analysis" jsonschema:"description=Per-subject accuracy and recommendations"`
	StudyPlan        []string                 `json:"study_plan" jsonschema:"description=Ordered next steps for the learner"`
	GeneratedBy      string                   `json:"generated_by"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// Service calls the LLM collaborator for test analysis. The call is always
// deadline-bounded and never surfaces an error to the caller: every failure
// path yields the fallback analysis.
type Service struct {
	client  *anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

func NewService(anthropicAPIKey string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var client *anthropic.Client
	if anthropicAPIKey != "" {
		c := anthropic.NewClient(option.WithAPIKey(anthropicAPIKey))
		client = &c
	} else {
		log.Printf("[WARN] No Anthropic API key configured, analysis will use fallback only")
	}
	return &Service{
		client:  client,
		model:   anthropic.ModelClaude4Sonnet20250514,
		timeout: timeout,
	}
}

// Analyze produces a structured analysis of the summary.
func (s *Service) Analyze(ctx context.Context, summary Summary) *Analysis {
	if s.client == nil {
		return Fallback(summary)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	analysis, err := s.callCollaborator(ctx, summary)
	if err != nil {
		log.Printf("[WARN] Analysis collaborator failed for test %s, using fallback: %v", summary.TestID, err)
		return Fallback(summary)
	}
	return analysis
}

func (s *Service) callCollaborator(ctx context.Context, summary Summary) (*Analysis, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	prompt := "You are an exam preparation coach. Analyze this practice test result and record " +
		"your analysis with the " + analysisToolName + " tool.\n\n" + string(payload)

	response, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        analysisToolName,
					Description: anthropic.String("Records the structured analysis of a practice test result"),
					InputSchema: generateAnthropicSchema[Analysis](),
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: analysisToolName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Anthropic API: %w", err)
	}

	for _, block := range response.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || toolUse.Name != analysisToolName {
			continue
		}
		inputJSON, err := json.Marshal(toolUse.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analysis tool input: %w", err)
		}
		var analysis Analysis
		if err := json.Unmarshal(inputJSON, &analysis); err != nil {
			return nil, fmt.Errorf("failed to parse analysis tool input: %w", err)
		}
		if analysis.PerformanceLevel == "" || analysis.OverallSummary == "" {
			return nil, fmt.Errorf("collaborator returned incomplete analysis")
		}
		analysis.GeneratedBy = string(s.model)
		analysis.GeneratedAt = time.Now().UTC()
		return &analysis, nil
	}
	return nil, fmt.Errorf("no %s tool use in response", analysisToolName)
}

func generateAnthropicSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
	}
}

// Fallback builds a deterministic analysis from the summary alone. Same
// shape, no external dependency.
func Fallback(summary Summary) *Analysis {
	subjectAnalysis := make(map[string]SubjectAdvice, len(summary.SubjectPerformance))
	subjects := make([]string, 0, len(summary.SubjectPerformance))
	for subject := range summary.SubjectPerformance {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	var plan []string
	for _, subject := range subjects {
		rollup := summary.SubjectPerformance[subject]
		accuracy := 0.0
		if rollup.Total > 0 {
			accuracy = float64(rollup.Correct) / float64(rollup.Total) * 100
		}
		subjectAnalysis[subject] = SubjectAdvice{
			Accuracy: accuracy,
			Recommendations: []string{
				fmt.Sprintf("Review the %s questions you missed in this test", subject),
				fmt.Sprintf("Practice more %s problems on your weak topics", subject),
			},
		}
		if accuracy < 50 {
			plan = append(plan, fmt.Sprintf("Prioritize %s: accuracy was %.0f%% this test", subject, accuracy))
		}
	}
	plan = append(plan, summary.Insights...)

	return &Analysis{
		PerformanceLevel: performanceLevel(summary.Score.Percentage),
		OverallSummary: fmt.Sprintf("You scored %.1f of %.1f (%.1f%%) with %d correct, %d incorrect and %d unattempted.",
			summary.Score.TotalScore, summary.Score.MaxPossibleScore, summary.Score.Percentage,
			summary.Attempts.Correct, summary.Attempts.Incorrect, summary.Attempts.Unattempted),
		SubjectAnalysis: subjectAnalysis,
		StudyPlan:       plan,
		GeneratedBy:     "fallback",
		GeneratedAt:     time.Now().UTC(),
	}
}

func performanceLevel(percentage float64) string {
	switch {
	case percentage >= 80:
		return "Excellent"
	case percentage >= 60:
		return "Good"
	case percentage >= 40:
		return "Fair"
	default:
		return "Needs Improvement"
	}
}

// BuildSummary assembles the collaborator input from an evaluation result.
func BuildSummary(result *models.EvaluationResult) Summary {
	subjectPerformance := make(map[string]*models.Rollup)
	for _, rollup := range result.ChapterPerformance {
		agg, ok := subjectPerformance[rollup.Subject]
		if !ok {
			agg = &models.Rollup{Subject: rollup.Subject}
			subjectPerformance[rollup.Subject] = agg
		}
		agg.Total += rollup.Total
		agg.Correct += rollup.Correct
	}

	return Summary{
		UserID:             result.UserID,
		TestID:             result.TestID,
		Score:              result.Score,
		Attempts:           result.Summary,
		SubjectPerformance: subjectPerformance,
		ChapterPerformance: result.ChapterPerformance,
		DetailedMistakes:   result.MistakeAnalysis,
		Insights:           result.Insights,
	}
}
