package evaluation

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"prepengine/models"
	"prepengine/services/classify"
	"prepengine/services/profile"
)

// contentPreviewLimit bounds how much question text a mistake record keeps.
const contentPreviewLimit = 100

// SessionStore loads and updates test sessions. GetSession returns (nil, nil)
// when the session does not exist.
type SessionStore interface {
	GetSession(ctx context.Context, testID string) (*models.TestSession, error)
	SaveSession(ctx context.Context, session *models.TestSession) error
}

// ResultStore persists evaluation results.
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.EvaluationResult) error
}

// Service scores completed sessions and folds the outcome into the learner's
// performance profile.
type Service struct {
	sessions SessionStore
	results  ResultStore
	profiles *profile.Service
}

func NewService(sessions SessionStore, results ResultStore, profiles *profile.Service) *Service {
	return &Service{sessions: sessions, results: results, profiles: profiles}
}

// EvaluateTest scores the session's questions against the submitted answers,
// keyed by zero-based question index. A session evaluates exactly once;
// re-submission is rejected.
func (s *Service) EvaluateTest(ctx context.Context, userID, testID string, answers map[int]string) (*models.EvaluationResult, error) {
	session, err := s.sessions.GetSession(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test session %s: %w", testID, err)
	}
	if session == nil {
		return nil, fmt.Errorf("test session %s not found", testID)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("test session %s does not belong to user %s", testID, userID)
	}
	if session.Status != models.SessionActive {
		return nil, fmt.Errorf("test session %s was already evaluated", testID)
	}

	result := s.score(session, answers)

	if err := s.foldIntoProfile(ctx, result, session); err != nil {
		return nil, err
	}

	session.Status = models.SessionEvaluated
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to mark session %s evaluated: %w", testID, err)
	}

	if s.results != nil {
		if err := s.results.SaveResult(ctx, result); err != nil {
			log.Printf("[WARN] Failed to persist evaluation result for %s: %v", testID, err)
		}
	}

	log.Printf("[INFO] Evaluated test %s for user %s: %.1f/%.1f (%.1f%%)",
		testID, userID, result.Score.TotalScore, result.Score.MaxPossibleScore, result.Score.Percentage)
	return result, nil
}

func (s *Service) score(session *models.TestSession, answers map[int]string) *models.EvaluationResult {
	result := &models.EvaluationResult{
		UserID:             session.UserID,
		TestID:             session.ID,
		ChapterPerformance: make(map[string]*models.Rollup),
		TopicPerformance:   make(map[string]*models.Rollup),
		CompletedAt:        time.Now().UTC(),
	}

	for i, sq := range session.Questions {
		q := sq.Question
		verdict := classify.Evaluate(q, answers[i])

		result.Score.TotalScore += verdict.Score
		result.Score.MaxPossibleScore += q.Marks
		switch verdict.Status {
		case models.StatusCorrect:
			result.Summary.Correct++
		case models.StatusIncorrect:
			result.Summary.Incorrect++
		default:
			result.Summary.Unattempted++
		}
		result.Summary.Total++

		chapterKey := q.Subject + ":" + q.Chapter
		addToRollup(result.ChapterPerformance, chapterKey, q, "", verdict.IsCorrect)
		topicKey := chapterKey + ":" + q.Topic
		addToRollup(result.TopicPerformance, topicKey, q, q.Topic, verdict.IsCorrect)

		correctAnswer := formatCorrectAnswer(q)
		result.DetailedResults = append(result.DetailedResults, models.QuestionResult{
			QuestionNumber:  i + 1,
			QuestionID:      q.ID,
			Subject:         q.Subject,
			Chapter:         q.Chapter,
			Topic:           q.Topic,
			UserAnswer:      answers[i],
			CorrectAnswer:   correctAnswer,
			IsCorrect:       verdict.IsCorrect,
			Score:           verdict.Score,
			Status:          verdict.Status,
			SelectionReason: sq.SelectionReason,
		})

		if verdict.Status == models.StatusIncorrect {
			result.MistakeAnalysis = append(result.MistakeAnalysis, models.MistakeRecord{
				QuestionID:      q.ID,
				Subject:         q.Subject,
				Chapter:         q.Chapter,
				Topic:           q.Topic,
				UserAnswer:      answers[i],
				CorrectAnswer:   correctAnswer,
				SelectionReason: sq.SelectionReason,
				ContentPreview:  previewContent(q.Content),
				RecordedAt:      result.CompletedAt,
			})
		}
	}

	if result.Score.MaxPossibleScore > 0 {
		pct := result.Score.TotalScore / result.Score.MaxPossibleScore * 100
		if pct < 0 {
			pct = 0
		}
		result.Score.Percentage = roundTwo(pct)
	}
	result.Insights = buildInsights(result.MistakeAnalysis, result.TopicPerformance)
	return result
}

// foldIntoProfile merges the result additively under the per-user lock.
// Folding two results is commutative: only counters accumulate.
func (s *Service) foldIntoProfile(ctx context.Context, result *models.EvaluationResult, session *models.TestSession) error {
	_, err := s.profiles.Update(ctx, result.UserID, func(p *models.PerformanceProfile) error {
		now := result.CompletedAt

		for key, rollup := range result.ChapterPerformance {
			mergeStat(p.ChapterStats, key, rollup, now)
		}
		for key, rollup := range result.TopicPerformance {
			mergeStat(p.TopicStats, key, rollup, now)
		}

		p.MistakeHistory = append(p.MistakeHistory, result.MistakeAnalysis...)
		if len(p.MistakeHistory) > models.MistakeHistoryCap {
			p.MistakeHistory = p.MistakeHistory[len(p.MistakeHistory)-models.MistakeHistoryCap:]
		}

		// Velocity compares against scores from before this test.
		p.LearningVelocity = profile.CalculateVelocity(p.RecentScores, result.Score.Percentage)

		p.RecentScores = append(p.RecentScores, models.RecentScore{
			Score:      result.Score.TotalScore,
			MaxScore:   result.Score.MaxPossibleScore,
			Percentage: result.Score.Percentage,
			Date:       now,
		})
		if len(p.RecentScores) > models.RecentScoresCap {
			p.RecentScores = p.RecentScores[len(p.RecentScores)-models.RecentScoresCap:]
		}

		p.TotalTests++
		p.TotalScore += result.Score.TotalScore
		p.AverageScore = p.TotalScore / float64(p.TotalTests)

		for _, sq := range session.Questions {
			p.MarkSeen(sq.Question.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to fold result into profile: %w", err)
	}
	return nil
}

func mergeStat(stats map[string]*models.TopicStat, key string, rollup *models.Rollup, now time.Time) {
	stat, ok := stats[key]
	if !ok {
		stat = &models.TopicStat{
			Subject: rollup.Subject,
			Chapter: rollup.Chapter,
			Topic:   rollup.Topic,
		}
		stats[key] = stat
	}
	stat.Attempts += rollup.Total
	stat.Correct += rollup.Correct
	stat.LastAttempted = now
}

func addToRollup(rollups map[string]*models.Rollup, key string, q *models.Question, topic string, correct bool) {
	rollup, ok := rollups[key]
	if !ok {
		rollup = &models.Rollup{Subject: q.Subject, Chapter: q.Chapter, Topic: topic}
		rollups[key] = rollup
	}
	rollup.Total++
	if correct {
		rollup.Correct++
	}
}

// buildInsights surfaces the subject with the most errors and up to three
// topics below 50% accuracy in this test.
func buildInsights(mistakes []models.MistakeRecord, topicPerformance map[string]*models.Rollup) []string {
	var insights []string

	if len(mistakes) > 0 {
		counts := make(map[string]int)
		for _, m := range mistakes {
			counts[m.Subject]++
		}
		worst, worstCount := "", 0
		for subject, count := range counts {
			if count > worstCount || (count == worstCount && subject < worst) {
				worst, worstCount = subject, count
			}
		}
		insights = append(insights, fmt.Sprintf("Most mistakes in %s (%d errors)", worst, worstCount))
	}

	var weak []string
	for _, rollup := range topicPerformance {
		if rollup.Total == 0 {
			continue
		}
		accuracy := float64(rollup.Correct) / float64(rollup.Total) * 100
		if accuracy < 50 {
			weak = append(weak, rollup.Subject+":"+rollup.Topic)
		}
	}
	if len(weak) > 0 {
		sort.Strings(weak)
		if len(weak) > 3 {
			weak = weak[:3]
		}
		insights = append(insights, "Weak topics identified: "+strings.Join(weak, ", "))
	}
	return insights
}

func formatCorrectAnswer(q *models.Question) string {
	switch q.Variant {
	case models.VariantSingleChoice:
		if len(q.Answer.CorrectOptions) > 0 {
			return q.Answer.CorrectOptions[0]
		}
		return ""
	case models.VariantMultiChoice:
		return strings.Join(q.Answer.CorrectOptions, ",")
	case models.VariantNumeric:
		return strconv.FormatFloat(q.Answer.NumericTarget, 'f', -1, 64)
	case models.VariantInteger:
		return strconv.FormatInt(q.Answer.IntegerTarget, 10)
	case models.VariantTextFill:
		return q.Answer.TextTarget
	}
	return ""
}

func previewContent(content string) string {
	if len(content) <= contentPreviewLimit {
		return content
	}
	return content[:contentPreviewLimit] + "..."
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
