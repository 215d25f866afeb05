package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"prepengine/models"
	"prepengine/services/evaluation"
	"prepengine/services/selector"
)

type GenerateTestRequest struct {
	UserID         string   `json:"user_id"`
	ExamType       string   `json:"exam_type"`
	TotalQuestions int      `json:"total_questions"`
	Subjects       []string `json:"subjects"`
}

type GenerateTestResponse struct {
	Success               bool                          `json:"success"`
	TestID                string                        `json:"test_id"`
	Questions             []models.SelectedQuestion     `json:"questions"`
	NoRepetitionGuarantee *models.NoRepetitionGuarantee `json:"no_repetition_guarantee"`
}

type EvaluateTestRequest struct {
	UserID  string            `json:"user_id"`
	TestID  string            `json:"test_id"`
	Answers map[string]string `json:"answers"` // keyed by zero-based question index
}

type TestHandler struct {
	selector  *selector.Service
	evaluator *evaluation.Service
}

func NewTestHandler(selector *selector.Service, evaluator *evaluation.Service) *TestHandler {
	return &TestHandler{selector: selector, evaluator: evaluator}
}

func (h *TestHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/generate-test", h.GenerateTest).Methods("POST")
	router.HandleFunc("/api/evaluate-test", h.EvaluateTest).Methods("POST")
}

func (h *TestHandler) GenerateTest(w http.ResponseWriter, r *http.Request) {
	var req GenerateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode generate-test request: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.TotalQuestions == 0 {
		req.TotalQuestions = 30
	}
	if len(req.Subjects) == 0 {
		req.Subjects = []string{"Physics", "Chemistry", "Mathematics"}
	}
	exam, ok := models.ParseExamType(req.ExamType)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Unknown exam type: "+req.ExamType)
		return
	}

	session, guarantee, err := h.selector.GenerateTest(r.Context(), req.UserID, exam, req.TotalQuestions, req.Subjects)
	if err != nil {
		log.Printf("[ERROR] Test generation failed for user %s: %v", req.UserID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, GenerateTestResponse{
		Success:               true,
		TestID:                session.ID,
		Questions:             session.Questions,
		NoRepetitionGuarantee: guarantee,
	})
}

func (h *TestHandler) EvaluateTest(w http.ResponseWriter, r *http.Request) {
	var req EvaluateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode evaluate-test request: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.TestID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "test_id is required")
		return
	}

	answers := make(map[int]string, len(req.Answers))
	for key, value := range req.Answers {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, "Answer keys must be zero-based question indexes")
			return
		}
		answers[index] = value
	}

	result, err := h.evaluator.EvaluateTest(r.Context(), req.UserID, req.TestID, answers)
	if err != nil {
		log.Printf("[ERROR] Test evaluation failed for %s: %v", req.TestID, err)
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

func (h *TestHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *TestHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
