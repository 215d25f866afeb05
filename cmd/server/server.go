package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"prepengine/config"
	"prepengine/db"
	"prepengine/handlers"
	"prepengine/models"
	"prepengine/services/analysis"
	"prepengine/services/evaluation"
	"prepengine/services/profile"
	"prepengine/services/questionbank"
	"prepengine/services/selector"
)

// sessionStore is what both the selector and the evaluator need from session
// persistence.
type sessionStore interface {
	GetSession(ctx context.Context, testID string) (*models.TestSession, error)
	SaveSession(ctx context.Context, session *models.TestSession) error
}

type resultStore interface {
	SaveResult(ctx context.Context, result *models.EvaluationResult) error
	GetResultsForUser(ctx context.Context, userID string, limit int) ([]*models.EvaluationResult, error)
}

func main() {
	cfg := config.Load()

	bank, err := buildQuestionBank(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize question bank: %v", err)
	}

	profileStore, sessions, results, err := buildStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}

	profiles := profile.NewService(profileStore)
	selectorService := selector.NewService(bank, profiles, sessions)
	evaluator := evaluation.NewService(sessions, results, profiles)
	analyzer := analysis.NewService(cfg.AnthropicAPIKey, cfg.AnalysisTimeout)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	handlers.NewTestHandler(selectorService, evaluator).RegisterRoutes(router)
	handlers.NewStatsHandler(bank, profiles).RegisterRoutes(router)
	handlers.NewIngestHandler(bank).RegisterRoutes(router)
	handlers.NewAnalysisHandler(analyzer, results).RegisterRoutes(router)

	addr := ":" + cfg.Port
	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func buildQuestionBank(cfg *config.Config) (*questionbank.Service, error) {
	var index questionbank.VectorIndex
	switch cfg.VectorMode {
	case "memory":
		log.Printf("[INFO] Using in-memory vector index")
		index = questionbank.NewMemoryIndex()
	default:
		if cfg.PineconeAPIKey == "" {
			return nil, fmt.Errorf("PINECONE_API_KEY is required unless VECTOR_MODE=memory")
		}
		pineconeIndex, err := questionbank.NewPineconeIndex(cfg.PineconeAPIKey, cfg.PineconeIndexName)
		if err != nil {
			return nil, err
		}
		index = pineconeIndex
	}

	var embedder questionbank.Embedder
	if cfg.OpenAIAPIKey != "" {
		var err error
		embedder, err = questionbank.NewOpenAIEmbedder(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
	} else {
		log.Printf("[WARN] No OpenAI API key configured, search falls back to filtered scans")
	}

	return questionbank.NewService(embedder, index), nil
}

func buildStores(cfg *config.Config) (profile.Store, sessionStore, resultStore, error) {
	if cfg.DatabaseURL == "" {
		log.Printf("[WARN] No DB_URL configured, using in-memory stores")
		return profile.NewMemoryStore(), db.NewMemorySessionStore(), db.NewMemoryResultStore(), nil
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	return db.NewPostgresProfileStore(database),
		db.NewPostgresSessionStore(database),
		db.NewPostgresResultStore(database),
		nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
