package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"prepengine/models"
	"prepengine/services/ingest"
	"prepengine/services/questionbank"
)

type LoadQuestionsRequest struct {
	ExamType  string               `json:"exam_type"`
	Questions []ingest.RawQuestion `json:"questions"`
}

type LoadQuestionsResponse struct {
	Success  bool               `json:"success"`
	Received int                `json:"received"`
	Admitted int                `json:"admitted"`
	Stats    questionbank.Stats `json:"stats"`
}

type IngestHandler struct {
	bank *questionbank.Service
}

func NewIngestHandler(bank *questionbank.Service) *IngestHandler {
	return &IngestHandler{bank: bank}
}

func (h *IngestHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/load-questions", h.LoadQuestions).Methods("POST")
}

func (h *IngestHandler) LoadQuestions(w http.ResponseWriter, r *http.Request) {
	var req LoadQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode load-questions request: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	exam, ok := models.ParseExamType(req.ExamType)
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Unknown exam type: "+req.ExamType)
		return
	}
	if len(req.Questions) == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "No questions in payload")
		return
	}

	questions := ingest.NormalizeBatch(req.Questions, exam)
	admitted := h.bank.IngestBatch(r.Context(), questions)

	h.writeJSONResponse(w, http.StatusOK, LoadQuestionsResponse{
		Success:  true,
		Received: len(req.Questions),
		Admitted: admitted,
		Stats:    h.bank.Stats(exam),
	})
}

func (h *IngestHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *IngestHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
