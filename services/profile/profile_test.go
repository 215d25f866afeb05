package profile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prepengine/models"
)

func statFor(subject, chapter, topic string, attempts, correct int) *models.TopicStat {
	return &models.TopicStat{
		Subject:       subject,
		Chapter:       chapter,
		Topic:         topic,
		Attempts:      attempts,
		Correct:       correct,
		LastAttempted: time.Now().UTC(),
	}
}

func profileWithStats(stats ...*models.TopicStat) *models.PerformanceProfile {
	p := models.NewPerformanceProfile("u-1")
	for _, s := range stats {
		key := fmt.Sprintf("%s:%s:%s", s.Subject, s.Chapter, s.Topic)
		p.TopicStats[key] = s
	}
	return p
}

func TestUpdateCreatesProfileOnFirstContact(t *testing.T) {
	svc := NewService(NewMemoryStore())

	p, err := svc.Update(context.Background(), "new-user", func(p *models.PerformanceProfile) error {
		p.MarkSeen("q-1")
		return nil
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if p.UserID != "new-user" || !p.HasSeen("q-1") {
		t.Errorf("Update() produced profile %+v, expected fresh profile with q-1 seen", p)
	}

	stored, err := svc.Snapshot(context.Background(), "new-user")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if !stored.HasSeen("q-1") {
		t.Errorf("persisted profile lost the seen ledger entry")
	}
}

func TestSnapshotForUnknownUserIsEmptyAndUnpersisted(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)

	p, err := svc.Snapshot(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if p.TotalTests != 0 || len(p.TopicStats) != 0 {
		t.Errorf("Snapshot() for unknown user = %+v, expected empty profile", p)
	}

	stored, _ := store.GetProfile(context.Background(), "ghost")
	if stored != nil {
		t.Errorf("Snapshot() persisted a profile for an unknown user")
	}
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
				p.TotalTests++
				p.MarkSeen(fmt.Sprintf("q-%d", i))
				return nil
			})
			if err != nil {
				t.Errorf("Update() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	p, _ := svc.Snapshot(ctx, "u-1")
	if p.TotalTests != 50 {
		t.Errorf("TotalTests = %d after 50 serialized updates, expected 50", p.TotalTests)
	}
	if len(p.SeenQuestionIDs) != 50 {
		t.Errorf("seen ledger holds %d ids, expected 50", len(p.SeenQuestionIDs))
	}
}

func TestSnapshotIsIsolatedFromConcurrentUpdates(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
		p.MarkSeen("q-0")
		return nil
	})
	if err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	snap, err := svc.Snapshot(ctx, "u-1")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, "u-1", func(p *models.PerformanceProfile) error {
				p.MarkSeen(fmt.Sprintf("q-%d", i+1))
				return nil
			})
			if err != nil {
				t.Errorf("Update() failed: %v", err)
			}
		}(i)
	}

	// Read the snapshot's ledger while the updates run.
	seen := 0
	for i := 0; i < 100; i++ {
		for range snap.SeenQuestionIDs {
			seen++
		}
	}
	wg.Wait()

	if seen != 100 || len(snap.SeenQuestionIDs) != 1 {
		t.Errorf("snapshot ledger holds %d entries, expected 1 regardless of later updates", len(snap.SeenQuestionIDs))
	}
}

func TestWeakTopicsThresholdAndRanking(t *testing.T) {
	p := profileWithStats(
		statFor("Physics", "Optics", "Refraction", 10, 2),       // 20% accuracy
		statFor("Physics", "Units", "Dimensional Analysis", 4, 2), // 50%
		statFor("Physics", "Waves", "Doppler Effect", 1, 0),     // too few attempts
		statFor("Physics", "Mechanics", "Friction", 10, 9),      // 90%, strong
		statFor("Chemistry", "Bonding", "Hybridization", 10, 1), // other subject
	)

	weak := WeakTopics(p, "Physics", 5)
	if len(weak) != 2 {
		t.Fatalf("WeakTopics() returned %d topics, expected 2: %+v", len(weak), weak)
	}
	if weak[0].Topic != "Refraction" {
		t.Errorf("WeakTopics() ranked %s first, expected Refraction (lowest accuracy)", weak[0].Topic)
	}
	if weak[0].Priority <= weak[1].Priority {
		t.Errorf("priorities not descending: %v then %v", weak[0].Priority, weak[1].Priority)
	}
}

func TestWeakTopicPriorityFormula(t *testing.T) {
	// accuracy 20, attempts 10: 0.5*0.8 + 0.3*1.0 + 0.2*0.8 = 0.86
	got := weakTopicPriority(20, 10)
	if diff := got - 0.86; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("weakTopicPriority(20, 10) = %v, expected 0.86", got)
	}
}

func TestMistakePatterns(t *testing.T) {
	p := profileWithStats(
		statFor("Physics", "Optics", "Refraction", 10, 1),   // 90% error rate
		statFor("Physics", "Waves", "Doppler Effect", 5, 2), // 60% error rate
		statFor("Physics", "Units", "Dimensions", 2, 0),     // too few attempts
		statFor("Physics", "Mechanics", "Friction", 10, 8),  // accuracy above ceiling
	)

	patterns := MistakePatterns(p, "Physics", 3)
	if len(patterns) != 2 {
		t.Fatalf("MistakePatterns() returned %d, expected 2: %+v", len(patterns), patterns)
	}
	if patterns[0].Topic != "Refraction" || patterns[0].ErrorRate != 90 {
		t.Errorf("top pattern = %+v, expected Refraction at 90%% error rate", patterns[0])
	}
}

func TestStrongTopics(t *testing.T) {
	p := profileWithStats(
		statFor("Physics", "Mechanics", "Friction", 10, 9), // 90%
		statFor("Physics", "Optics", "Refraction", 10, 8),  // 80%, not above threshold
	)

	strong := StrongTopics(p, "Physics", 5)
	if len(strong) != 1 || strong[0].Topic != "Friction" {
		t.Errorf("StrongTopics() = %+v, expected only Friction", strong)
	}
}

func TestCalculateVelocity(t *testing.T) {
	scores := func(pcts ...float64) []models.RecentScore {
		out := make([]models.RecentScore, len(pcts))
		for i, pct := range pcts {
			out[i] = models.RecentScore{Percentage: pct}
		}
		return out
	}

	tests := []struct {
		name     string
		previous []models.RecentScore
		current  float64
		status   string
		trend    models.Trend
	}{
		{"one previous score is insufficient", scores(50), 60, "insufficient_data", ""},
		{"improving", scores(50, 52), 60, "calculated", models.TrendImproving},
		{"stable", scores(50, 52), 52, "calculated", models.TrendStable},
		{"declining", scores(60, 62), 50, "calculated", models.TrendDeclining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CalculateVelocity(tt.previous, tt.current)
			if v.Status != tt.status {
				t.Fatalf("Status = %q, expected %q", v.Status, tt.status)
			}
			if tt.status == "calculated" && v.Trend != tt.trend {
				t.Errorf("Trend = %s, expected %s", v.Trend, tt.trend)
			}
		})
	}
}

func TestConsistencyGrading(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   models.Consistency
	}{
		{"too few scores", []float64{50, 55}, models.ConsistencyUnknown},
		{"tight spread", []float64{70, 72, 71, 73}, models.ConsistencyHigh},
		{"moderate spread", []float64{60, 70, 80}, models.ConsistencyModerate},
		{"wide spread", []float64{20, 50, 90}, models.ConsistencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consistency(tt.scores); got != tt.want {
				t.Errorf("consistency(%v) = %s, expected %s", tt.scores, got, tt.want)
			}
		})
	}
}
