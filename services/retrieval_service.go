package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/vectorstore"
)

// NoDocumentsMessage is what the document search tool returns while the
// index is empty.
const NoDocumentsMessage = "No documents in vectorstore. Please add some documents first."

// RetrievalService runs similarity search for the agent and the search API.
type RetrievalService struct {
	index vectorstore.Index
	k     int
	log   *logger.Logger
}

func NewRetrievalService(index vectorstore.Index, k int, log *logger.Logger) *RetrievalService {
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RetrievalService{index: index, k: k, log: log}
}

// Retrieve returns the top-k chunk texts joined by blank lines. An empty
// index is not an error; it yields NoDocumentsMessage.
func (r *RetrievalService) Retrieve(ctx context.Context, query string) (string, error) {
	results, err := r.index.Search(ctx, query, r.k)
	if errors.Is(err, models.ErrRetrievalUnavailable) {
		return NoDocumentsMessage, nil
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoDocumentsMessage, nil
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	r.log.Debug("retrieved chunks", "query", query, "count", len(results))
	return strings.Join(texts, "\n\n"), nil
}

// Search returns scored results. k <= 0 uses the service default.
func (r *RetrievalService) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", models.ErrInvalidInput)
	}
	if k <= 0 {
		k = r.k
	}
	return r.index.Search(ctx, query, k)
}
