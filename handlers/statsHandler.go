package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"prepengine/models"
	"prepengine/services/profile"
	"prepengine/services/questionbank"
)

type UserStatsResponse struct {
	UserID           string                             `json:"user_id"`
	TotalTests       int                                `json:"total_tests"`
	AverageScore     float64                            `json:"average_score"`
	QuestionsSeen    int                                `json:"questions_seen"`
	LearningVelocity models.LearningVelocity            `json:"learning_velocity"`
	RecentScores     []models.RecentScore               `json:"recent_scores"`
	WeakTopics       map[string][]models.WeakTopic      `json:"weak_topics"`
	StrongTopics     map[string][]models.WeakTopic      `json:"strong_topics"`
	MistakePatterns  map[string][]models.MistakePattern `json:"mistake_patterns"`
}

type HealthResponse struct {
	Status         string         `json:"status"`
	QuestionCounts map[string]int `json:"question_counts"`
	EmbeddingCache int            `json:"embedding_cache_entries"`
	Timestamp      time.Time      `json:"timestamp"`
}

type StatsHandler struct {
	bank     *questionbank.Service
	profiles *profile.Service
}

func NewStatsHandler(bank *questionbank.Service, profiles *profile.Service) *StatsHandler {
	return &StatsHandler{bank: bank, profiles: profiles}
}

func (h *StatsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/user-stats/{user_id}", h.UserStats).Methods("GET")
	router.HandleFunc("/api/question-stats/{exam_type}", h.QuestionStats).Methods("GET")
	router.HandleFunc("/api/health", h.Health).Methods("GET")
}

func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	snapshot, err := h.profiles.Snapshot(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] Failed to load profile for %s: %v", userID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	subjects := make(map[string]struct{})
	for _, stat := range snapshot.TopicStats {
		subjects[stat.Subject] = struct{}{}
	}

	resp := UserStatsResponse{
		UserID:           userID,
		TotalTests:       snapshot.TotalTests,
		AverageScore:     snapshot.AverageScore,
		QuestionsSeen:    len(snapshot.SeenQuestionIDs),
		LearningVelocity: snapshot.LearningVelocity,
		RecentScores:     snapshot.RecentScores,
		WeakTopics:       make(map[string][]models.WeakTopic),
		StrongTopics:     make(map[string][]models.WeakTopic),
		MistakePatterns:  make(map[string][]models.MistakePattern),
	}
	for subject := range subjects {
		if weak := profile.WeakTopics(snapshot, subject, 5); len(weak) > 0 {
			resp.WeakTopics[subject] = weak
		}
		if strong := profile.StrongTopics(snapshot, subject, 5); len(strong) > 0 {
			resp.StrongTopics[subject] = strong
		}
		if patterns := profile.MistakePatterns(snapshot, subject, 5); len(patterns) > 0 {
			resp.MistakePatterns[subject] = patterns
		}
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *StatsHandler) QuestionStats(w http.ResponseWriter, r *http.Request) {
	exam, ok := models.ParseExamType(mux.Vars(r)["exam_type"])
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Unknown exam type")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, h.bank.Stats(exam))
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, len(models.AllExamTypes))
	for _, exam := range models.AllExamTypes {
		counts[string(exam)] = h.bank.Count(exam)
	}

	h.writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		QuestionCounts: counts,
		EmbeddingCache: h.bank.CacheSize(),
		Timestamp:      time.Now().UTC(),
	})
}

func (h *StatsHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *StatsHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
