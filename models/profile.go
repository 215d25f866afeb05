package models

import "time"

const (
	// MistakeHistoryCap bounds the mistake ring buffer; oldest entries are
	// evicted first.
	MistakeHistoryCap = 50
	// RecentScoresCap bounds the recent-scores ring buffer.
	RecentScoresCap = 10
)

// TopicStat accumulates attempts for one (subject, chapter, topic) key.
// Accuracy is always derived from the counters, never stored, so the two can
// not drift apart.
type TopicStat struct {
	Subject       string    `json:"subject"`
	Chapter       string    `json:"chapter"`
	Topic         string    `json:"topic,omitempty"`
	Attempts      int       `json:"attempts"`
	Correct       int       `json:"correct"`
	LastAttempted time.Time `json:"last_attempted"`
}

// Accuracy returns the percentage of correct attempts (0-100).
func (s *TopicStat) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Attempts) * 100
}

type MistakeRecord struct {
	QuestionID      string    `json:"question_id"`
	Subject         string    `json:"subject"`
	Chapter         string    `json:"chapter"`
	Topic           string    `json:"topic"`
	UserAnswer      string    `json:"user_answer"`
	CorrectAnswer   string    `json:"correct_answer"`
	SelectionReason string    `json:"selection_reason"`
	ContentPreview  string    `json:"content_preview"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type RecentScore struct {
	Score      float64   `json:"score"`
	MaxScore   float64   `json:"max_score"`
	Percentage float64   `json:"percentage"`
	Date       time.Time `json:"date"`
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

type Consistency string

const (
	ConsistencyHigh     Consistency = "high"
	ConsistencyModerate Consistency = "moderate"
	ConsistencyLow      Consistency = "low"
	ConsistencyUnknown  Consistency = "unknown"
)

type LearningVelocity struct {
	Status          string      `json:"status"` // calculated / insufficient_data
	ImprovementRate float64     `json:"improvement_rate"`
	Trend           Trend       `json:"trend"`
	Consistency     Consistency `json:"consistency"`
}

// PerformanceProfile is the per-learner aggregate. It is mutated only under
// the profile service's per-user lock.
type PerformanceProfile struct {
	UserID           string                `json:"user_id"`
	TopicStats       map[string]*TopicStat `json:"topic_performance"`   // key subject:chapter:topic
	ChapterStats     map[string]*TopicStat `json:"chapter_performance"` // key subject:chapter
	MistakeHistory   []MistakeRecord       `json:"mistake_history"`
	SeenQuestionIDs  map[string]struct{}   `json:"seen_question_ids"`
	RecentScores     []RecentScore         `json:"recent_scores"`
	TotalTests       int                   `json:"total_tests"`
	TotalScore       float64               `json:"total_score"`
	AverageScore     float64               `json:"average_score"`
	LearningVelocity LearningVelocity      `json:"learning_velocity"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func NewPerformanceProfile(userID string) *PerformanceProfile {
	now := time.Now().UTC()
	return &PerformanceProfile{
		UserID:          userID,
		TopicStats:      make(map[string]*TopicStat),
		ChapterStats:    make(map[string]*TopicStat),
		SeenQuestionIDs: make(map[string]struct{}),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkSeen adds question ids to the seen ledger. The ledger is append-only:
// ids are never removed.
func (p *PerformanceProfile) MarkSeen(ids ...string) {
	if p.SeenQuestionIDs == nil {
		p.SeenQuestionIDs = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		p.SeenQuestionIDs[id] = struct{}{}
	}
}

// HasSeen reports whether the learner was ever presented this question.
func (p *PerformanceProfile) HasSeen(id string) bool {
	_, ok := p.SeenQuestionIDs[id]
	return ok
}

// WeakTopic is a TopicStat below the weakness threshold, ranked by a
// remediation priority score.
type WeakTopic struct {
	Topic    string  `json:"topic"`
	Subject  string  `json:"subject"`
	Chapter  string  `json:"chapter"`
	Accuracy float64 `json:"accuracy"`
	Attempts int     `json:"attempts"`
	Priority float64 `json:"priority"`
}

// MistakePattern is a TopicStat with a persistent error rate.
type MistakePattern struct {
	Topic     string  `json:"topic"`
	Subject   string  `json:"subject"`
	Chapter   string  `json:"chapter"`
	ErrorRate float64 `json:"error_rate"`
	Attempts  int     `json:"attempts"`
}
