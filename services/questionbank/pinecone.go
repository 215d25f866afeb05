package questionbank

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeIndex implements VectorIndex against a Pinecone serverless index,
// one namespace per exam type.
type PineconeIndex struct {
	client    *pinecone.Client
	indexName string
	indexHost string
}

func NewPineconeIndex(apiKey, indexName string) (*PineconeIndex, error) {
	log.Printf("[INFO] Initializing Pinecone index %s", indexName)

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	idxDesc, err := pc.DescribeIndex(context.Background(), indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", indexName, err)
	}

	log.Printf("[INFO] Pinecone index %s resolved to host %s", indexName, idxDesc.Host)

	return &PineconeIndex{
		client:    pc,
		indexName: indexName,
		indexHost: idxDesc.Host,
	}, nil
}

func (p *PineconeIndex) connection(namespace string) (*pinecone.IndexConnection, error) {
	return p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.indexHost,
		Namespace: qualifyNamespace(namespace),
	})
}

func (p *PineconeIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error {
	idxConn, err := p.connection(namespace)
	if err != nil {
		return fmt.Errorf("failed to create index connection: %w", err)
	}

	metadataStruct, err := structpb.NewStruct(metadata)
	if err != nil {
		return fmt.Errorf("failed to create metadata struct for %s: %w", id, err)
	}

	_, err = idxConn.UpsertVectors(ctx, []*pinecone.Vector{
		{
			Id:       id,
			Values:   &vector,
			Metadata: metadataStruct,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", id, err)
	}
	return nil
}

func (p *PineconeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	idxConn, err := p.connection(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	var metadataFilter *structpb.Struct
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata filter: %w", err)
		}
	}

	result, err := idxConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeValues:   false,
		IncludeMetadata: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}

	matches := make([]Match, 0, len(result.Matches))
	for _, m := range result.Matches {
		if m.Vector == nil || strings.TrimSpace(m.Vector.Id) == "" {
			continue
		}
		matches = append(matches, Match{ID: m.Vector.Id, Score: m.Score})
	}
	return matches, nil
}

func qualifyNamespace(namespace string) string {
	return "questions-" + strings.ToLower(namespace)
}
