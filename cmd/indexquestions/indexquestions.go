package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"prepengine/config"
	"prepengine/models"
	"prepengine/services/ingest"
	"prepengine/services/questionbank"
)

// questionFile is the dump format: either a bare array of records or an
// object wrapping one.
type questionFile struct {
	Questions []ingest.RawQuestion `json:"questions"`
}

func main() {
	var (
		dir      = flag.String("dir", "questions", "directory of question JSON dumps")
		examName = flag.String("exam", "JEE_MAIN", "exam type to ingest under")
	)
	flag.Parse()

	log.Printf("[INFO] Starting question indexing from %s", *dir)

	cfg := config.Load()

	exam, ok := models.ParseExamType(*examName)
	if !ok {
		log.Fatalf("[ERROR] Unknown exam type %q", *examName)
	}

	bank, err := buildBank(cfg)
	if err != nil {
		log.Fatalf("[ERROR] Failed to initialize question bank: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.json"))
	if err != nil || len(files) == 0 {
		log.Fatalf("[ERROR] No question files found in %s", *dir)
	}

	ctx := context.Background()
	totalAdmitted := 0
	for _, file := range files {
		raws, err := readQuestionFile(file)
		if err != nil {
			log.Printf("[WARN] Skipping %s: %v", file, err)
			continue
		}

		questions := ingest.NormalizeBatch(raws, exam)
		admitted := bank.IngestBatch(ctx, questions)
		totalAdmitted += admitted
		log.Printf("[INFO] %s: admitted %d/%d questions", filepath.Base(file), admitted, len(raws))
	}

	stats := bank.Stats(exam)
	log.Printf("[INFO] Indexing complete: %d questions admitted for %s across %d subjects, %d chapters, %d topics",
		totalAdmitted, exam, len(stats.Subjects), len(stats.Chapters), len(stats.Topics))
}

func buildBank(cfg *config.Config) (*questionbank.Service, error) {
	if strings.EqualFold(cfg.VectorMode, "memory") {
		log.Printf("[WARN] VECTOR_MODE=memory: vectors will not outlive this process")
		return questionbank.NewService(nil, questionbank.NewMemoryIndex()), nil
	}

	index, err := questionbank.NewPineconeIndex(cfg.PineconeAPIKey, cfg.PineconeIndexName)
	if err != nil {
		return nil, err
	}
	embedder, err := questionbank.NewOpenAIEmbedder(cfg.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	return questionbank.NewService(embedder, index), nil
}

func readQuestionFile(path string) ([]ingest.RawQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raws []ingest.RawQuestion
	if err := json.Unmarshal(data, &raws); err == nil {
		return raws, nil
	}

	var wrapped questionFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Questions, nil
}
