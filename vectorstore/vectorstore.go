// Package vectorstore holds the persisted similarity index over document chunks.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/itish2003/ragagent/config"
	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

// DefaultK is the number of results returned when a caller asks for k <= 0.
const DefaultK = 3

// Metric selects how query and chunk vectors are compared.
type Metric string

const (
	// MetricCosine scores by cosine similarity; higher is closer.
	MetricCosine Metric = "cosine"
	// MetricL2 scores by euclidean distance; lower is closer.
	MetricL2 Metric = "l2"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelID identifies the embedding model; an index only ever holds
	// vectors from one model.
	ModelID() string
}

// Index is the chunk store searched by the retrieval service.
type Index interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	// HasSource reports whether chunks of a document with this sha256 are indexed.
	HasSource(ctx context.Context, sourceHash string) (bool, error)
	Close() error
}

// New builds the backend selected by cfg.VectorBackend.
func New(ctx context.Context, cfg *config.Config, embedder Embedder, log *logger.Logger) (Index, error) {
	switch cfg.VectorBackend {
	case "", "file":
		return NewFileIndex(cfg.VectorStorePath, embedder,
			WithMetric(Metric(cfg.VectorMetric)),
			WithConcurrency(cfg.EmbedConcurrency),
			WithLockTimeout(cfg.IndexLockTimeout),
			WithLogger(log),
		), nil
	case "chroma":
		return NewChromaIndex(ctx, cfg.ChromaCollection, embedder, log)
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", models.ErrInvalidInput, cfg.VectorBackend)
	}
}
