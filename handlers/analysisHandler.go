package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"prepengine/models"
	"prepengine/services/analysis"
)

// resultFinder is the slice of the result store the analysis endpoint needs.
type resultFinder interface {
	GetResultsForUser(ctx context.Context, userID string, limit int) ([]*models.EvaluationResult, error)
}

type AnalyzeTestRequest struct {
	UserID string `json:"user_id"`
	TestID string `json:"test_id"`
}

type AnalysisHandler struct {
	analyzer *analysis.Service
	results  resultFinder
}

func NewAnalysisHandler(analyzer *analysis.Service, results resultFinder) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, results: results}
}

func (h *AnalysisHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/analyze-test", h.AnalyzeTest).Methods("POST")
}

func (h *AnalysisHandler) AnalyzeTest(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode analyze-test request: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.UserID == "" || req.TestID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "user_id and test_id are required")
		return
	}

	results, err := h.results.GetResultsForUser(r.Context(), req.UserID, 20)
	if err != nil {
		log.Printf("[ERROR] Failed to load results for %s: %v", req.UserID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	var target *models.EvaluationResult
	for _, result := range results {
		if result.TestID == req.TestID {
			target = result
			break
		}
	}
	if target == nil {
		h.writeErrorResponse(w, http.StatusNotFound, "No evaluation found for test "+req.TestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.analyzer.Analyze(r.Context(), analysis.BuildSummary(target)))
}

func (h *AnalysisHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *AnalysisHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
