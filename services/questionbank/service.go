package questionbank

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"prepengine/models"
)

// Embedder turns text into a fixed-length vector. Satisfied by
// langchaingo's embeddings.Embedder.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchFilters are exact-match metadata constraints. Empty fields are
// ignored.
type SearchFilters struct {
	Subject    string
	Chapter    string
	Topic      string
	Difficulty models.Difficulty
}

// Stats summarizes one exam type's share of the bank.
type Stats struct {
	TotalQuestions int      `json:"total_questions"`
	Subjects       []string `json:"subjects"`
	Chapters       []string `json:"chapters"`
	Topics         []string `json:"topics"`
	Difficulties   []string `json:"difficulties"`
}

// Service is the question repository: the canonical in-memory store plus a
// semantic index and a bounded embedding cache. The store is read-mostly;
// writes happen during ingestion only.
type Service struct {
	mu     sync.RWMutex
	byID   map[string]*models.Question
	byExam map[models.ExamType][]string

	embedder Embedder
	index    VectorIndex
	cache    *embeddingCache
}

// NewService builds a question bank. A nil embedder or index is allowed:
// search then degrades to unranked metadata-filtered lookup.
func NewService(embedder Embedder, index VectorIndex) *Service {
	return &Service{
		byID:     make(map[string]*models.Question),
		byExam:   make(map[models.ExamType][]string),
		embedder: embedder,
		index:    index,
		cache:    newEmbeddingCache(embeddingCacheCeiling, embeddingCacheSurvivors),
	}
}

// Ingest admits one validated question. Ingesting an id that already exists
// is a no-op. Embedding or index failure is not fatal: the record stays
// available through the metadata-scan path.
func (s *Service) Ingest(ctx context.Context, q *models.Question) error {
	if err := validateQuestion(q); err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.byID[q.ID]; exists {
		s.mu.Unlock()
		log.Printf("[INFO] Question %s already exists, skipping", q.ID)
		return nil
	}
	s.byID[q.ID] = q
	s.byExam[q.ExamType] = append(s.byExam[q.ExamType], q.ID)
	s.mu.Unlock()

	if err := s.indexQuestion(ctx, q); err != nil {
		log.Printf("[WARN] Failed to index question %s, metadata search still available: %v", q.ID, err)
	}
	return nil
}

// IngestBatch admits a batch, skipping invalid records instead of aborting.
// Returns the number of admitted questions.
func (s *Service) IngestBatch(ctx context.Context, questions []*models.Question) int {
	admitted := 0
	for _, q := range questions {
		if err := s.Ingest(ctx, q); err != nil {
			log.Printf("[WARN] Rejected question during batch ingestion: %v", err)
			continue
		}
		admitted++
	}
	log.Printf("[INFO] Batch ingestion admitted %d/%d questions", admitted, len(questions))
	return admitted
}

func (s *Service) indexQuestion(ctx context.Context, q *models.Question) error {
	if s.embedder == nil || s.index == nil {
		return fmt.Errorf("no embedding backend configured")
	}

	vector, err := s.embedQuery(ctx, q.Content)
	if err != nil {
		return fmt.Errorf("failed to embed question: %w", err)
	}

	metadata := map[string]any{
		"subject":    q.Subject,
		"chapter":    q.Chapter,
		"topic":      q.Topic,
		"difficulty": string(q.Difficulty),
		"marks":      q.Marks,
		"neg_marks":  q.NegativeMarks,
		"year":       q.Year,
	}
	return s.index.Upsert(ctx, string(q.ExamType), q.ID, vector, metadata)
}

// Get returns the question for id, if present.
func (s *Service) Get(id string) (*models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[id]
	return q, ok
}

// Count returns how many questions an exam type holds.
func (s *Service) Count(exam models.ExamType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byExam[exam])
}

// Search finds up to limit questions for the exam type. With a query it
// runs a nearest-neighbor lookup ranked by similarity; without one (or when
// the embedding backend is unavailable) it falls back to an unranked
// metadata scan, so callers must not read relevance into the order.
// Questions whose ids appear in excludeIDs are never returned.
func (s *Service) Search(ctx context.Context, exam models.ExamType, query string, filters SearchFilters, excludeIDs map[string]struct{}, limit int) []*models.Question {
	if limit <= 0 {
		return nil
	}

	if query != "" {
		results, err := s.semanticSearch(ctx, exam, query, filters, excludeIDs, limit)
		if err == nil {
			return results
		}
		log.Printf("[WARN] Semantic search unavailable, falling back to filtered scan: %v", err)
	}

	return s.scan(exam, query, filters, excludeIDs, limit)
}

func (s *Service) semanticSearch(ctx context.Context, exam models.ExamType, query string, filters SearchFilters, excludeIDs map[string]struct{}, limit int) ([]*models.Question, error) {
	if s.embedder == nil || s.index == nil {
		return nil, fmt.Errorf("no embedding backend configured")
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Over-fetch to leave room for exclusions and post-filtering.
	matches, err := s.index.Query(ctx, string(exam), vector, limit*2+len(excludeIDs), filters.metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.Question, 0, limit)
	for _, m := range matches {
		if len(results) >= limit {
			break
		}
		if _, excluded := excludeIDs[m.ID]; excluded {
			continue
		}
		q, ok := s.byID[m.ID]
		if !ok || !filters.accepts(q) {
			continue
		}
		results = append(results, q)
	}
	return results, nil
}

// scan walks the exam type's records in insertion order. When query terms
// are present (the degraded path), lexically matching questions are
// preferred before the rest.
func (s *Service) scan(exam models.ExamType, query string, filters SearchFilters, excludeIDs map[string]struct{}, limit int) []*models.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var preferred, rest []*models.Question
	terms := strings.Fields(strings.ToLower(query))

	for _, id := range s.byExam[exam] {
		if _, excluded := excludeIDs[id]; excluded {
			continue
		}
		q := s.byID[id]
		if !filters.accepts(q) {
			continue
		}
		if len(terms) > 0 && lexicalMatch(q, terms) {
			preferred = append(preferred, q)
		} else {
			rest = append(rest, q)
		}
	}

	results := append(preferred, rest...)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// lexicalMatch reports whether any query term fuzzily matches the question
// content or its topic.
func lexicalMatch(q *models.Question, terms []string) bool {
	content := strings.ToLower(q.Content)
	topic := strings.ToLower(q.Topic)
	return lo.SomeBy(terms, func(term string) bool {
		return fuzzy.MatchFold(term, content) || fuzzy.MatchFold(term, topic)
	})
}

// Stats reports counts and distinct metadata values for one exam type.
func (s *Service) Stats(exam models.ExamType) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byExam[exam]
	questions := lo.Map(ids, func(id string, _ int) *models.Question { return s.byID[id] })

	return Stats{
		TotalQuestions: len(ids),
		Subjects:       lo.Uniq(lo.Map(questions, func(q *models.Question, _ int) string { return q.Subject })),
		Chapters:       lo.Uniq(lo.Map(questions, func(q *models.Question, _ int) string { return q.Chapter })),
		Topics:         lo.Uniq(lo.Map(questions, func(q *models.Question, _ int) string { return q.Topic })),
		Difficulties:   lo.Uniq(lo.Map(questions, func(q *models.Question, _ int) string { return string(q.Difficulty) })),
	}
}

// CacheSize exposes the embedding cache cardinality for health reporting.
func (s *Service) CacheSize() int {
	return s.cache.size()
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if vector, ok := s.cache.get(key); ok {
		return vector, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, vector)
	return vector, nil
}

func (f SearchFilters) metadata() map[string]any {
	m := make(map[string]any)
	if f.Subject != "" {
		m["subject"] = f.Subject
	}
	if f.Chapter != "" {
		m["chapter"] = f.Chapter
	}
	if f.Topic != "" {
		m["topic"] = f.Topic
	}
	if f.Difficulty != "" {
		m["difficulty"] = string(f.Difficulty)
	}
	return m
}

func (f SearchFilters) accepts(q *models.Question) bool {
	if f.Subject != "" && q.Subject != f.Subject {
		return false
	}
	if f.Chapter != "" && q.Chapter != f.Chapter {
		return false
	}
	if f.Topic != "" && q.Topic != f.Topic {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	return true
}

func validateQuestion(q *models.Question) error {
	if q == nil {
		return fmt.Errorf("nil question")
	}
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question has no id")
	}
	if strings.TrimSpace(q.Content) == "" {
		return fmt.Errorf("question %s has no content", q.ID)
	}
	if len(q.Options) < 4 && !q.Variant.FreeResponse() {
		return fmt.Errorf("question %s has %d options and is not free-response", q.ID, len(q.Options))
	}
	if q.Subject == "" || q.Chapter == "" || q.Topic == "" {
		return fmt.Errorf("question %s is missing subject/chapter/topic metadata", q.ID)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("question %s has non-positive marks", q.ID)
	}
	if q.NegativeMarks < 0 {
		return fmt.Errorf("question %s has negative negative-marks", q.ID)
	}
	return nil
}

func hashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
