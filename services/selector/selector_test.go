package selector

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"prepengine/models"
	"prepengine/services/profile"
	"prepengine/services/questionbank"
)

type sessionRecorder struct {
	saved []*models.TestSession
}

func (r *sessionRecorder) SaveSession(_ context.Context, session *models.TestSession) error {
	r.saved = append(r.saved, session)
	return nil
}

func seedBank(t *testing.T, subjects []string, perSubject int) *questionbank.Service {
	t.Helper()
	bank := questionbank.NewService(nil, nil)
	for _, subject := range subjects {
		for i := 0; i < perSubject; i++ {
			q := &models.Question{
				ID:      fmt.Sprintf("%s-q-%d", strings.ToLower(subject), i),
				Content: fmt.Sprintf("%s question number %d about mechanics", subject, i),
				Options: []models.Option{
					{ID: "A", Text: "first"}, {ID: "B", Text: "second"},
					{ID: "C", Text: "third"}, {ID: "D", Text: "fourth"},
				},
				Answer:   models.AnswerSpec{CorrectOptions: []string{"A"}},
				Subject:  subject,
				Chapter:  fmt.Sprintf("%s-chapter-%d", subject, i),
				Topic:    fmt.Sprintf("%s-topic-%d", subject, i),
				Marks:    4,
				Variant:  models.VariantSingleChoice,
				ExamType: models.ExamJEEMain,
			}
			if err := bank.Ingest(context.Background(), q); err != nil {
				t.Fatalf("Ingest() failed: %v", err)
			}
		}
	}
	return bank
}

func newTestService(bank *questionbank.Service) (*Service, *profile.Service, *sessionRecorder) {
	profiles := profile.NewService(profile.NewMemoryStore())
	recorder := &sessionRecorder{}
	svc := NewServiceWithRand(bank, profiles, recorder, rand.New(rand.NewSource(1)))
	return svc, profiles, recorder
}

func selectedIDs(session *models.TestSession) map[string]struct{} {
	ids := make(map[string]struct{}, len(session.Questions))
	for _, sq := range session.Questions {
		ids[sq.Question.ID] = struct{}{}
	}
	return ids
}

func TestGenerateTestIDsAreUnique(t *testing.T) {
	bank := seedBank(t, []string{"Physics", "Chemistry"}, 30)
	svc, _, recorder := newTestService(bank)

	session, guarantee, err := svc.GenerateTest(context.Background(), "u-1", models.ExamJEEMain, 30, []string{"Physics", "Chemistry"})
	if err != nil {
		t.Fatalf("GenerateTest() failed: %v", err)
	}

	if len(session.Questions) != 30 {
		t.Errorf("session holds %d questions, expected 30", len(session.Questions))
	}
	if len(selectedIDs(session)) != len(session.Questions) {
		t.Errorf("session contains duplicate question ids")
	}
	if !guarantee.RepetitionFree || guarantee.PreviouslySeen != 0 {
		t.Errorf("guarantee = %+v, expected repetition-free with zero previously seen", guarantee)
	}
	if len(recorder.saved) != 1 {
		t.Errorf("saved %d sessions, expected 1", len(recorder.saved))
	}
}

func TestGenerateTestExcludesSeenQuestions(t *testing.T) {
	bank := seedBank(t, []string{"Physics"}, 25)
	svc, profiles, _ := newTestService(bank)
	ctx := context.Background()

	_, err := profiles.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
		p.MarkSeen("physics-q-0", "physics-q-1", "physics-q-2")
		return nil
	})
	if err != nil {
		t.Fatalf("seeding seen ledger failed: %v", err)
	}

	session, _, err := svc.GenerateTest(ctx, "u-1", models.ExamJEEMain, 10, []string{"Physics"})
	if err != nil {
		t.Fatalf("GenerateTest() failed: %v", err)
	}

	for id := range selectedIDs(session) {
		if id == "physics-q-0" || id == "physics-q-1" || id == "physics-q-2" {
			t.Errorf("selected previously seen question %s", id)
		}
	}
}

func TestSelectionAloneMarksQuestionsSeen(t *testing.T) {
	bank := seedBank(t, []string{"Physics"}, 30)
	svc, profiles, _ := newTestService(bank)
	ctx := context.Background()

	first, _, err := svc.GenerateTest(ctx, "u-1", models.ExamJEEMain, 10, []string{"Physics"})
	if err != nil {
		t.Fatalf("first GenerateTest() failed: %v", err)
	}

	snapshot, _ := profiles.Snapshot(ctx, "u-1")
	for id := range selectedIDs(first) {
		if !snapshot.HasSeen(id) {
			t.Errorf("question %s not marked seen at selection time", id)
		}
	}

	// A second test, never evaluated in between, must not repeat anything.
	second, _, err := svc.GenerateTest(ctx, "u-1", models.ExamJEEMain, 10, []string{"Physics"})
	if err != nil {
		t.Fatalf("second GenerateTest() failed: %v", err)
	}
	firstIDs := selectedIDs(first)
	for id := range selectedIDs(second) {
		if _, repeated := firstIDs[id]; repeated {
			t.Errorf("question %s repeated across back-to-back sessions", id)
		}
	}
}

func TestConcurrentGenerationNeverRepeatsQuestions(t *testing.T) {
	bank := seedBank(t, []string{"Physics"}, 40)
	svc, _, _ := newTestService(bank)
	ctx := context.Background()

	var wg sync.WaitGroup
	sessions := make([]*models.TestSession, 2)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := svc.GenerateTest(ctx, "u-1", models.ExamJEEMain, 15, []string{"Physics"})
			if err != nil {
				t.Errorf("GenerateTest() failed: %v", err)
				return
			}
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	if sessions[0] == nil || sessions[1] == nil {
		t.Fatalf("a concurrent generation produced no session")
	}
	first := selectedIDs(sessions[0])
	for id := range selectedIDs(sessions[1]) {
		if _, overlap := first[id]; overlap {
			t.Errorf("question %s selected by both concurrent sessions", id)
		}
	}
}

func TestWeakTrancheQuota(t *testing.T) {
	bank := seedBank(t, []string{"Physics"}, 40)
	svc, profiles, _ := newTestService(bank)
	ctx := context.Background()

	_, err := profiles.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
		p.TopicStats["Physics:Kinematics:Projectiles"] = &models.TopicStat{
			Subject: "Physics", Chapter: "Kinematics", Topic: "Projectiles",
			Attempts: 10, Correct: 2,
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding profile failed: %v", err)
	}

	session, _, err := svc.GenerateTest(ctx, "u-1", models.ExamJEEMain, 30, []string{"Physics"})
	if err != nil {
		t.Fatalf("GenerateTest() failed: %v", err)
	}

	weak := 0
	for _, sq := range session.Questions {
		if strings.HasPrefix(sq.SelectionReason, "weak_topic_") {
			weak++
		}
	}
	if weak != 18 {
		t.Errorf("weak tranche yielded %d questions, expected floor(0.6*30)=18", weak)
	}
}

func TestRemainderGoesToFirstSubjects(t *testing.T) {
	bank := seedBank(t, []string{"Physics", "Chemistry"}, 25)
	svc, _, _ := newTestService(bank)

	session, _, err := svc.GenerateTest(context.Background(), "u-1", models.ExamJEEMain, 31, []string{"Physics", "Chemistry"})
	if err != nil {
		t.Fatalf("GenerateTest() failed: %v", err)
	}

	counts := map[string]int{}
	for _, sq := range session.Questions {
		counts[sq.Question.Subject]++
	}
	if counts["Physics"] != 16 || counts["Chemistry"] != 15 {
		t.Errorf("subject split = %v, expected Physics 16 and Chemistry 15", counts)
	}
}

func TestSubjectQuota(t *testing.T) {
	tests := []struct {
		total, count, index, want int
	}{
		{30, 2, 0, 15},
		{30, 2, 1, 15},
		{31, 2, 0, 16},
		{31, 2, 1, 15},
		{10, 3, 0, 4},
		{10, 3, 1, 3},
		{10, 3, 2, 3},
	}
	for _, tt := range tests {
		if got := subjectQuota(tt.total, tt.count, tt.index); got != tt.want {
			t.Errorf("subjectQuota(%d, %d, %d) = %d, expected %d", tt.total, tt.count, tt.index, got, tt.want)
		}
	}
}

func TestExhaustionShrinksYieldWithoutError(t *testing.T) {
	bank := seedBank(t, []string{"Physics"}, 5)
	svc, _, _ := newTestService(bank)

	session, guarantee, err := svc.GenerateTest(context.Background(), "u-1", models.ExamJEEMain, 20, []string{"Physics"})
	if err != nil {
		t.Fatalf("GenerateTest() failed: %v", err)
	}
	if len(session.Questions) != 5 {
		t.Errorf("session holds %d questions, expected all 5 available", len(session.Questions))
	}
	if guarantee.TotalQuestions != 5 {
		t.Errorf("guarantee total = %d, expected 5", guarantee.TotalQuestions)
	}
}

func TestEmptyBankIsAnExplicitError(t *testing.T) {
	bank := questionbank.NewService(nil, nil)
	svc, _, _ := newTestService(bank)

	if _, _, err := svc.GenerateTest(context.Background(), "u-1", models.ExamJEEMain, 10, []string{"Physics"}); err == nil {
		t.Errorf("GenerateTest() on an empty bank succeeded, expected error")
	}
}

func TestInterleaveAvoidsDifficultyCliff(t *testing.T) {
	svc, _, _ := newTestService(questionbank.NewService(nil, nil))

	var pool []models.SelectedQuestion
	for i := 0; i < 4; i++ {
		pool = append(pool,
			models.SelectedQuestion{Question: &models.Question{ID: fmt.Sprintf("e-%d", i), ComplexityScore: 1}},
			models.SelectedQuestion{Question: &models.Question{ID: fmt.Sprintf("m-%d", i), ComplexityScore: 3}},
			models.SelectedQuestion{Question: &models.Question{ID: fmt.Sprintf("h-%d", i), ComplexityScore: 5}},
		)
	}

	out := svc.interleaveByComplexity(pool)
	if len(out) != len(pool) {
		t.Fatalf("interleave changed pool size: %d -> %d", len(pool), len(out))
	}
	// With equal buckets the pattern is strict easy, medium, hard triplets.
	for i := 0; i < len(out); i += 3 {
		if out[i].Question.ComplexityScore > 2 {
			t.Errorf("position %d holds complexity %d, expected an easy question", i, out[i].Question.ComplexityScore)
		}
		if out[i+2].Question.ComplexityScore < 4 {
			t.Errorf("position %d holds complexity %d, expected a hard question", i+2, out[i+2].Question.ComplexityScore)
		}
	}
}
