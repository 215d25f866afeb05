package selector

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prepengine/models"
	"prepengine/services/profile"
	"prepengine/services/questionbank"
)

const (
	// maxTestQuestions caps a single session; larger requests are clamped.
	maxTestQuestions = 90

	weakTrancheShare    = 0.6
	mistakeTrancheShare = 0.25
	topWeakTopics       = 3
	recentMistakes      = 3

	// mistakeQueryLimit bounds how much of a mistaken question's text feeds
	// the similarity query.
	mistakeQueryLimit = 200
)

// SessionStore persists generated test sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.TestSession) error
}

// Service assembles personalized tests: weak-topic remediation first, then
// questions similar to recent mistakes, then general coverage for breadth.
type Service struct {
	bank     *questionbank.Service
	profiles *profile.Service
	sessions SessionStore

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(bank *questionbank.Service, profiles *profile.Service, sessions SessionStore) *Service {
	return NewServiceWithRand(bank, profiles, sessions, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewServiceWithRand pins the shuffle source, used by tests.
func NewServiceWithRand(bank *questionbank.Service, profiles *profile.Service, sessions SessionStore, rng *rand.Rand) *Service {
	return &Service{bank: bank, profiles: profiles, sessions: sessions, rng: rng}
}

// GenerateTest builds a session of up to totalQuestions unseen questions for
// the user, split evenly across subjects. The ledger read, the selection and
// the MarkSeen write all run inside one profile update, so concurrent
// selections for the same user serialize and an abandoned session can never
// resurface its questions.
func (s *Service) GenerateTest(ctx context.Context, userID string, exam models.ExamType, totalQuestions int, subjects []string) (*models.TestSession, *models.NoRepetitionGuarantee, error) {
	if len(subjects) == 0 {
		return nil, nil, fmt.Errorf("no subjects requested")
	}
	if totalQuestions <= 0 {
		return nil, nil, fmt.Errorf("total_questions must be positive")
	}
	if totalQuestions > maxTestQuestions {
		totalQuestions = maxTestQuestions
	}
	if s.bank.Count(exam) == 0 {
		return nil, nil, fmt.Errorf("question bank holds no %s questions", exam)
	}

	var (
		session   *models.TestSession
		guarantee *models.NoRepetitionGuarantee
	)
	_, err := s.profiles.Update(ctx, userID, func(p *models.PerformanceProfile) error {
		exclude := make(map[string]struct{}, len(p.SeenQuestionIDs))
		for id := range p.SeenQuestionIDs {
			exclude[id] = struct{}{}
		}
		log.Printf("[INFO] Generating %d-question %s test for user %s, excluding %d seen questions",
			totalQuestions, exam, userID, len(exclude))

		var pool []models.SelectedQuestion
		for i, subject := range subjects {
			quota := subjectQuota(totalQuestions, len(subjects), i)
			pool = append(pool, s.selectForSubject(ctx, p, exam, subject, quota, exclude)...)
		}

		pool = s.interleaveByComplexity(pool)
		if len(pool) > totalQuestions {
			pool = pool[:totalQuestions]
		}

		session = &models.TestSession{
			ID:        uuid.NewString(),
			UserID:    userID,
			ExamType:  exam,
			Subjects:  subjects,
			Questions: pool,
			CreatedAt: time.Now().UTC(),
			Status:    models.SessionActive,
		}

		guarantee = buildGuarantee(p, pool)
		logSourceCounts(pool)

		// Session save failure aborts the update, so no id is marked seen
		// for a session that was never stored.
		if s.sessions != nil {
			if err := s.sessions.SaveSession(ctx, session); err != nil {
				return fmt.Errorf("failed to save test session: %w", err)
			}
		}

		ids := make([]string, len(pool))
		for i, sq := range pool {
			ids[i] = sq.Question.ID
		}
		p.MarkSeen(ids...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, guarantee, nil
}

// subjectQuota splits total across count subjects; the remainder goes to the
// first subjects in request order, one each.
func subjectQuota(total, count, index int) int {
	quota := total / count
	if index < total%count {
		quota++
	}
	return quota
}

func (s *Service) selectForSubject(ctx context.Context, snapshot *models.PerformanceProfile, exam models.ExamType, subject string, quota int, exclude map[string]struct{}) []models.SelectedQuestion {
	var selected []models.SelectedQuestion

	weakCount := int(float64(quota) * weakTrancheShare)
	selected = append(selected, s.weakTopicTranche(ctx, snapshot, exam, subject, weakCount, exclude)...)

	mistakeCount := int(float64(quota) * mistakeTrancheShare)
	selected = append(selected, s.mistakeTranche(ctx, snapshot, exam, subject, mistakeCount, exclude)...)

	// Whatever the targeted tranches could not fill falls through to
	// general coverage.
	if remaining := quota - len(selected); remaining > 0 {
		selected = append(selected, s.generalCoverageTranche(ctx, exam, subject, remaining, exclude)...)
	}

	if len(selected) > quota {
		selected = selected[:quota]
	}
	return selected
}

// weakTopicTranche draws questions semantically close to the subject's top
// weak topics.
func (s *Service) weakTopicTranche(ctx context.Context, snapshot *models.PerformanceProfile, exam models.ExamType, subject string, count int, exclude map[string]struct{}) []models.SelectedQuestion {
	if count <= 0 {
		return nil
	}

	weak := profile.WeakTopics(snapshot, subject, topWeakTopics)
	if len(weak) == 0 {
		return nil
	}

	perTopic := count / len(weak)
	if perTopic == 0 {
		perTopic = 1
	}

	var selected []models.SelectedQuestion
	for _, topic := range weak {
		if len(selected) >= count {
			break
		}
		query := subject + " " + topic.Topic
		matches := s.bank.Search(ctx, exam, query, questionbank.SearchFilters{Subject: subject}, exclude, perTopic)
		for _, q := range matches {
			if len(selected) >= count {
				break
			}
			selected = append(selected, models.SelectedQuestion{
				Question:        q,
				SelectionReason: "weak_topic_" + topic.Topic,
			})
			exclude[q.ID] = struct{}{}
		}
	}
	log.Printf("[INFO] Weak-topic tranche for %s: %d/%d questions across %d topics",
		subject, len(selected), count, len(weak))
	return selected
}

// mistakeTranche finds questions similar to the user's most recent mistakes
// in the subject.
func (s *Service) mistakeTranche(ctx context.Context, snapshot *models.PerformanceProfile, exam models.ExamType, subject string, count int, exclude map[string]struct{}) []models.SelectedQuestion {
	if count <= 0 {
		return nil
	}

	mistakes := recentSubjectMistakes(snapshot, subject, recentMistakes)
	if len(mistakes) == 0 {
		return nil
	}

	var selected []models.SelectedQuestion
	for _, mistake := range mistakes {
		if len(selected) >= count {
			break
		}

		query := mistakeQuery(s.bank, mistake)
		if query == "" {
			continue
		}
		exclude[mistake.QuestionID] = struct{}{}

		matches := s.bank.Search(ctx, exam, query, questionbank.SearchFilters{Subject: subject}, exclude, count-len(selected))
		for _, q := range matches {
			if len(selected) >= count {
				break
			}
			selected = append(selected, models.SelectedQuestion{
				Question:        q,
				SelectionReason: "mistake_pattern_" + mistake.Topic,
			})
			exclude[q.ID] = struct{}{}
		}
	}
	log.Printf("[INFO] Mistake tranche for %s: %d/%d questions from %d recent mistakes",
		subject, len(selected), count, len(mistakes))
	return selected
}

// recentSubjectMistakes walks the mistake ring newest-first.
func recentSubjectMistakes(snapshot *models.PerformanceProfile, subject string, limit int) []models.MistakeRecord {
	var out []models.MistakeRecord
	for i := len(snapshot.MistakeHistory) - 1; i >= 0 && len(out) < limit; i-- {
		if snapshot.MistakeHistory[i].Subject == subject {
			out = append(out, snapshot.MistakeHistory[i])
		}
	}
	return out
}

// mistakeQuery prefers the stored content preview, falling back to the live
// question text for records written before previews were kept.
func mistakeQuery(bank *questionbank.Service, mistake models.MistakeRecord) string {
	text := mistake.ContentPreview
	if text == "" {
		if q, ok := bank.Get(mistake.QuestionID); ok {
			text = q.Content
		}
	}
	if len(text) > mistakeQueryLimit {
		text = text[:mistakeQueryLimit]
	}
	return strings.TrimSpace(text)
}

// generalCoverageTranche fills remaining slots with breadth: a chapter is not
// repeated unless fewer than half the slots are filled.
func (s *Service) generalCoverageTranche(ctx context.Context, exam models.ExamType, subject string, count int, exclude map[string]struct{}) []models.SelectedQuestion {
	if count <= 0 {
		return nil
	}

	candidates := s.bank.Search(ctx, exam, "", questionbank.SearchFilters{Subject: subject}, exclude, count*4)
	s.shuffleQuestions(candidates)

	var selected []models.SelectedQuestion
	chaptersUsed := make(map[string]struct{})
	for _, q := range candidates {
		if len(selected) >= count {
			break
		}
		if _, used := chaptersUsed[q.Chapter]; used && len(selected) >= count/2 {
			continue
		}
		selected = append(selected, models.SelectedQuestion{
			Question:        q,
			SelectionReason: "general_coverage",
		})
		chaptersUsed[q.Chapter] = struct{}{}
		exclude[q.ID] = struct{}{}
	}
	log.Printf("[INFO] General coverage tranche for %s: %d/%d questions", subject, len(selected), count)
	return selected
}

// interleaveByComplexity avoids a monotonic difficulty ramp: bucket by
// complexity score, shuffle within buckets, then round-robin easy, medium,
// hard.
func (s *Service) interleaveByComplexity(pool []models.SelectedQuestion) []models.SelectedQuestion {
	var easy, medium, hard []models.SelectedQuestion
	for _, sq := range pool {
		switch {
		case sq.Question.ComplexityScore <= 2:
			easy = append(easy, sq)
		case sq.Question.ComplexityScore == 3:
			medium = append(medium, sq)
		default:
			hard = append(hard, sq)
		}
	}

	s.shuffleSelected(easy)
	s.shuffleSelected(medium)
	s.shuffleSelected(hard)

	result := make([]models.SelectedQuestion, 0, len(pool))
	maxLen := len(easy)
	if len(medium) > maxLen {
		maxLen = len(medium)
	}
	if len(hard) > maxLen {
		maxLen = len(hard)
	}
	for i := 0; i < maxLen; i++ {
		if i < len(easy) {
			result = append(result, easy[i])
		}
		if i < len(medium) {
			result = append(result, medium[i])
		}
		if i < len(hard) {
			result = append(result, hard[i])
		}
	}
	return result
}

func (s *Service) shuffleQuestions(questions []*models.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

func (s *Service) shuffleSelected(selected []models.SelectedQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
}

func buildGuarantee(snapshot *models.PerformanceProfile, pool []models.SelectedQuestion) *models.NoRepetitionGuarantee {
	unique := make(map[string]struct{}, len(pool))
	previouslySeen := 0
	for _, sq := range pool {
		unique[sq.Question.ID] = struct{}{}
		if snapshot.HasSeen(sq.Question.ID) {
			previouslySeen++
		}
	}
	return &models.NoRepetitionGuarantee{
		TotalQuestions:  len(pool),
		UniqueQuestions: len(unique),
		PreviouslySeen:  previouslySeen,
		RepetitionFree:  previouslySeen == 0 && len(unique) == len(pool),
	}
}

func logSourceCounts(pool []models.SelectedQuestion) {
	weak, mistakes, general := 0, 0, 0
	for _, sq := range pool {
		switch {
		case strings.HasPrefix(sq.SelectionReason, "weak_topic_"):
			weak++
		case strings.HasPrefix(sq.SelectionReason, "mistake_pattern_"):
			mistakes++
		default:
			general++
		}
	}
	log.Printf("[INFO] Question sources: %d weak topics, %d mistake patterns, %d general coverage",
		weak, mistakes, general)
}
