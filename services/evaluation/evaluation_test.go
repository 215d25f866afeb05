package evaluation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"prepengine/models"
	"prepengine/services/profile"
)

type memorySessions struct {
	sessions map[string]*models.TestSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]*models.TestSession)}
}

func (m *memorySessions) GetSession(_ context.Context, testID string) (*models.TestSession, error) {
	return m.sessions[testID], nil
}

func (m *memorySessions) SaveSession(_ context.Context, session *models.TestSession) error {
	m.sessions[session.ID] = session
	return nil
}

type memoryResults struct {
	saved []*models.EvaluationResult
}

func (m *memoryResults) SaveResult(_ context.Context, result *models.EvaluationResult) error {
	m.saved = append(m.saved, result)
	return nil
}

func scoredQuestion(id, subject, chapter, topic, correct string) models.SelectedQuestion {
	return models.SelectedQuestion{
		Question: &models.Question{
			ID:      id,
			Content: "Question " + id + " about " + topic,
			Options: []models.Option{
				{ID: "A", Text: "first"}, {ID: "B", Text: "second"},
				{ID: "C", Text: "third"}, {ID: "D", Text: "fourth"},
			},
			Answer:        models.AnswerSpec{CorrectOptions: []string{correct}},
			Subject:       subject,
			Chapter:       chapter,
			Topic:         topic,
			Marks:         4,
			NegativeMarks: 1,
			Variant:       models.VariantSingleChoice,
			ExamType:      models.ExamJEEMain,
		},
		SelectionReason: "general_coverage",
	}
}

func activeSession(testID, userID string, questions ...models.SelectedQuestion) *models.TestSession {
	return &models.TestSession{
		ID:        testID,
		UserID:    userID,
		ExamType:  models.ExamJEEMain,
		Subjects:  []string{"Physics"},
		Questions: questions,
		CreatedAt: time.Now().UTC(),
		Status:    models.SessionActive,
	}
}

func newTestService(t *testing.T, sessions ...*models.TestSession) (*Service, *memorySessions, *memoryResults, *profile.Service) {
	t.Helper()
	store := newMemorySessions()
	for _, s := range sessions {
		store.sessions[s.ID] = s
	}
	results := &memoryResults{}
	profiles := profile.NewService(profile.NewMemoryStore())
	return NewService(store, results, profiles), store, results, profiles
}

func TestEvaluateTestScoring(t *testing.T) {
	session := activeSession("t-1", "u-1",
		scoredQuestion("q-1", "Physics", "Optics", "Refraction", "A"),
		scoredQuestion("q-2", "Physics", "Optics", "Refraction", "B"),
		scoredQuestion("q-3", "Physics", "Units", "Dimensions", "C"),
	)
	svc, _, results, _ := newTestService(t, session)

	// q-1 correct, q-2 wrong, q-3 unattempted.
	result, err := svc.EvaluateTest(context.Background(), "u-1", "t-1", map[int]string{0: "A", 1: "C"})
	if err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}

	if result.Score.TotalScore != 3 || result.Score.MaxPossibleScore != 12 {
		t.Errorf("Score = %+v, expected total 3 of max 12", result.Score)
	}
	if result.Score.Percentage != 25 {
		t.Errorf("Percentage = %v, expected 25", result.Score.Percentage)
	}
	if result.Summary.Correct != 1 || result.Summary.Incorrect != 1 || result.Summary.Unattempted != 1 {
		t.Errorf("Summary = %+v, expected 1/1/1", result.Summary)
	}
	if len(result.MistakeAnalysis) != 1 || result.MistakeAnalysis[0].QuestionID != "q-2" {
		t.Errorf("MistakeAnalysis = %+v, expected only q-2", result.MistakeAnalysis)
	}

	optics := result.ChapterPerformance["Physics:Optics"]
	if optics == nil || optics.Total != 2 || optics.Correct != 1 {
		t.Errorf("chapter rollup = %+v, expected 1/2 for Physics:Optics", optics)
	}
	refraction := result.TopicPerformance["Physics:Optics:Refraction"]
	if refraction == nil || refraction.Total != 2 || refraction.Correct != 1 {
		t.Errorf("topic rollup = %+v, expected 1/2 for Refraction", refraction)
	}
	if len(results.saved) != 1 {
		t.Errorf("saved %d results, expected 1", len(results.saved))
	}
}

func TestPercentageFlooredAtZero(t *testing.T) {
	session := activeSession("t-1", "u-1",
		scoredQuestion("q-1", "Physics", "Optics", "Refraction", "A"),
		scoredQuestion("q-2", "Physics", "Optics", "Refraction", "A"),
	)
	svc, _, _, _ := newTestService(t, session)

	result, err := svc.EvaluateTest(context.Background(), "u-1", "t-1", map[int]string{0: "B", 1: "B"})
	if err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}
	if result.Score.TotalScore != -2 {
		t.Errorf("TotalScore = %v, expected -2 from negative marking", result.Score.TotalScore)
	}
	if result.Score.Percentage != 0 {
		t.Errorf("Percentage = %v, expected floor at 0", result.Score.Percentage)
	}
}

func TestSessionEvaluatesExactlyOnce(t *testing.T) {
	session := activeSession("t-1", "u-1", scoredQuestion("q-1", "Physics", "Optics", "Refraction", "A"))
	svc, store, _, _ := newTestService(t, session)
	ctx := context.Background()

	if _, err := svc.EvaluateTest(ctx, "u-1", "t-1", map[int]string{0: "A"}); err != nil {
		t.Fatalf("first EvaluateTest() failed: %v", err)
	}
	if store.sessions["t-1"].Status != models.SessionEvaluated {
		t.Errorf("session status = %s, expected evaluated", store.sessions["t-1"].Status)
	}
	if _, err := svc.EvaluateTest(ctx, "u-1", "t-1", map[int]string{0: "A"}); err == nil {
		t.Errorf("second EvaluateTest() succeeded, expected rejection")
	}
}

func TestEvaluateRejectsWrongUserAndUnknownSession(t *testing.T) {
	session := activeSession("t-1", "u-1", scoredQuestion("q-1", "Physics", "Optics", "Refraction", "A"))
	svc, _, _, _ := newTestService(t, session)
	ctx := context.Background()

	if _, err := svc.EvaluateTest(ctx, "intruder", "t-1", nil); err == nil {
		t.Errorf("EvaluateTest() for another user's session succeeded")
	}
	if _, err := svc.EvaluateTest(ctx, "u-1", "no-such-test", nil); err == nil {
		t.Errorf("EvaluateTest() for unknown session succeeded")
	}
}

func TestProfileFoldIsCommutative(t *testing.T) {
	buildSessions := func() (*models.TestSession, *models.TestSession) {
		a := activeSession("t-a", "u-1",
			scoredQuestion("qa-1", "Physics", "Optics", "Refraction", "A"),
			scoredQuestion("qa-2", "Physics", "Optics", "Refraction", "A"),
		)
		b := activeSession("t-b", "u-1",
			scoredQuestion("qb-1", "Physics", "Optics", "Refraction", "A"),
			scoredQuestion("qb-2", "Physics", "Units", "Dimensions", "A"),
		)
		return a, b
	}
	answersA := map[int]string{0: "A", 1: "B"}
	answersB := map[int]string{0: "A", 1: "A"}

	run := func(order []string) *models.PerformanceProfile {
		a, b := buildSessions()
		svc, _, _, profiles := newTestService(t, a, b)
		ctx := context.Background()
		for _, id := range order {
			answers := answersA
			if id == "t-b" {
				answers = answersB
			}
			if _, err := svc.EvaluateTest(ctx, "u-1", id, answers); err != nil {
				t.Fatalf("EvaluateTest(%s) failed: %v", id, err)
			}
		}
		p, _ := profiles.Snapshot(ctx, "u-1")
		return p
	}

	ab := run([]string{"t-a", "t-b"})
	ba := run([]string{"t-b", "t-a"})

	for _, key := range []string{"Physics:Optics:Refraction", "Physics:Units:Dimensions"} {
		sa, sb := ab.TopicStats[key], ba.TopicStats[key]
		if sa == nil || sb == nil {
			t.Fatalf("topic stat %s missing: A,B=%v B,A=%v", key, sa, sb)
		}
		if sa.Attempts != sb.Attempts || sa.Correct != sb.Correct {
			t.Errorf("topic stat %s differs by order: A,B=%d/%d B,A=%d/%d",
				key, sa.Correct, sa.Attempts, sb.Correct, sb.Attempts)
		}
	}
	if ab.TotalScore != ba.TotalScore || ab.TotalTests != ba.TotalTests {
		t.Errorf("totals differ by order: A,B=%v/%d B,A=%v/%d",
			ab.TotalScore, ab.TotalTests, ba.TotalScore, ba.TotalTests)
	}
}

func TestRingBuffersStayBounded(t *testing.T) {
	questions := make([]models.SelectedQuestion, 60)
	answers := make(map[int]string, 60)
	for i := range questions {
		questions[i] = scoredQuestion(fmt.Sprintf("q-%d", i), "Physics", "Optics", "Refraction", "A")
		answers[i] = "B" // every answer wrong
	}
	session := activeSession("t-1", "u-1", questions...)
	svc, _, _, profiles := newTestService(t, session)
	ctx := context.Background()

	if _, err := svc.EvaluateTest(ctx, "u-1", "t-1", answers); err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}

	p, _ := profiles.Snapshot(ctx, "u-1")
	if len(p.MistakeHistory) != models.MistakeHistoryCap {
		t.Errorf("mistake history holds %d records, expected cap %d", len(p.MistakeHistory), models.MistakeHistoryCap)
	}
	// The newest mistakes survive.
	last := p.MistakeHistory[len(p.MistakeHistory)-1]
	if last.QuestionID != "q-59" {
		t.Errorf("newest surviving mistake = %s, expected q-59", last.QuestionID)
	}
}

func TestSeenLedgerNeverShrinks(t *testing.T) {
	session := activeSession("t-1", "u-1", scoredQuestion("q-1", "Physics", "Optics", "Refraction", "A"))
	svc, _, _, profiles := newTestService(t, session)
	ctx := context.Background()

	_, err := profiles.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
		p.MarkSeen("older-question")
		return nil
	})
	if err != nil {
		t.Fatalf("seeding ledger failed: %v", err)
	}

	if _, err := svc.EvaluateTest(ctx, "u-1", "t-1", map[int]string{0: "A"}); err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}

	p, _ := profiles.Snapshot(ctx, "u-1")
	if !p.HasSeen("older-question") || !p.HasSeen("q-1") {
		t.Errorf("seen ledger lost entries: %v", p.SeenQuestionIDs)
	}
}

func TestVelocityRecomputedOnFold(t *testing.T) {
	sessions := make([]*models.TestSession, 3)
	for i := range sessions {
		sessions[i] = activeSession(fmt.Sprintf("t-%d", i), "u-1",
			scoredQuestion(fmt.Sprintf("s%d-q1", i), "Physics", "Optics", "Refraction", "A"),
			scoredQuestion(fmt.Sprintf("s%d-q2", i), "Physics", "Optics", "Refraction", "A"),
		)
	}
	svc, _, _, profiles := newTestService(t, sessions...)
	ctx := context.Background()

	// Two mediocre tests, then a perfect one.
	if _, err := svc.EvaluateTest(ctx, "u-1", "t-0", map[int]string{0: "A", 1: "B"}); err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}
	if _, err := svc.EvaluateTest(ctx, "u-1", "t-1", map[int]string{0: "A", 1: "B"}); err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}
	if _, err := svc.EvaluateTest(ctx, "u-1", "t-2", map[int]string{0: "A", 1: "A"}); err != nil {
		t.Fatalf("EvaluateTest() failed: %v", err)
	}

	p, _ := profiles.Snapshot(ctx, "u-1")
	if p.LearningVelocity.Status != "calculated" {
		t.Fatalf("velocity status = %q, expected calculated after 3 tests", p.LearningVelocity.Status)
	}
	if p.LearningVelocity.Trend != models.TrendImproving {
		t.Errorf("trend = %s, expected improving", p.LearningVelocity.Trend)
	}
	if p.TotalTests != 3 || len(p.RecentScores) != 3 {
		t.Errorf("TotalTests=%d RecentScores=%d, expected 3 and 3", p.TotalTests, len(p.RecentScores))
	}
}
