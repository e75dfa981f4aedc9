package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

// indexTag marks every record this index writes so Reset can delete them
// without touching other data in the collection.
const indexTag = "ragagent"

// ChromaIndex stores chunks in a Chroma collection. Vectors are computed
// locally and sent with the records, so the collection never embeds.
type ChromaIndex struct {
	client     chromago.Client
	collection chromago.Collection
	embedder   Embedder
	log        *logger.Logger
}

// NewChromaIndex connects to the Chroma server (CHROMA_URL or localhost:8000)
// and gets or creates the named collection.
func NewChromaIndex(ctx context.Context, name string, embedder Embedder, log *logger.Logger) (*ChromaIndex, error) {
	if log == nil {
		log = logger.NewNop()
	}
	client, err := chromago.NewHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%w: creating chroma client: %v", models.ErrExternalService, err)
	}

	collection, err := client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "ragagent document chunks"),
				chromago.NewStringAttribute("embedding_model", embedder.ModelID()),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: getting collection %q: %v", models.ErrExternalService, name, err)
	}
	if err := checkCollectionModel(collection.Metadata(), embedder.ModelID()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}
	log.Info("chroma collection ready", "collection", name)
	return &ChromaIndex{client: client, collection: collection, embedder: embedder, log: log}, nil
}

// checkCollectionModel rejects a collection created for another embedding
// model. Collections without the key predate it and are accepted.
func checkCollectionModel(meta chromago.CollectionMetadata, model string) error {
	if meta == nil {
		return nil
	}
	indexed, ok := meta.GetString("embedding_model")
	if !ok || indexed == "" || indexed == model {
		return nil
	}
	return fmt.Errorf("%w: collection holds %q vectors, embedder is %q", models.ErrEmbeddingMismatch, indexed, model)
}

func (c *ChromaIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := embedAll(ctx, c.embedder, texts, 4)
	if err != nil {
		return err
	}

	model := c.embedder.ModelID()
	ids := make([]chromago.DocumentID, len(chunks))
	embs := make([]embeddings.Embedding, len(chunks))
	metas := make([]chromago.DocumentMetadata, len(chunks))
	for i, ch := range chunks {
		id := ch.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = chromago.DocumentID(id)
		embs[i] = embeddings.NewEmbeddingFromFloat32(vecs[i])
		metas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("source_file", ch.Source),
			chromago.NewStringAttribute("file_hash", ch.SourceHash),
			chromago.NewStringAttribute("format", string(ch.Format)),
			chromago.NewIntAttribute("chunk_num", int64(ch.Ordinal)),
			chromago.NewStringAttribute("embedding_model", model),
			chromago.NewStringAttribute("index_tag", indexTag),
		)
	}

	err = c.collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("%w: adding %d chunks to chroma: %v", models.ErrPersistence, len(chunks), err)
	}
	c.log.Info("chunks indexed", "added", len(chunks), "backend", "chroma")
	return nil
}

// Search returns the k nearest chunks. Score is the distance Chroma reports,
// lower is closer.
func (c *ChromaIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, models.ErrRetrievalUnavailable
	}
	if k <= 0 {
		k = DefaultK
	}

	qv, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(qv)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chroma: %v", models.ErrExternalService, err)
	}

	docGroups := results.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}
	metaGroups := results.GetMetadatasGroups()
	idGroups := results.GetIDGroups()
	distGroups := results.GetDistancesGroups()

	out := make([]models.SearchResult, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		r := models.SearchResult{Text: doc.ContentString()}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			r.ChunkID = string(idGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			r.Score = float64(distGroups[0][i])
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			meta := metadataMap(metaGroups[0][i])
			if s, ok := meta["source_file"].(string); ok {
				r.Source = s
			}
			if o, ok := meta["chunk_num"].(float64); ok {
				r.Ordinal = int(o)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *ChromaIndex) Reset(ctx context.Context) error {
	err := c.collection.Delete(ctx, chromago.WithWhereDelete(chromago.EqString("index_tag", indexTag)))
	if err != nil {
		return fmt.Errorf("%w: clearing chroma collection: %v", models.ErrPersistence, err)
	}
	c.log.Info("vector index reset", "backend", "chroma")
	return nil
}

func (c *ChromaIndex) Count(ctx context.Context) (int, error) {
	n, err := c.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chroma records: %v", models.ErrExternalService, err)
	}
	return int(n), nil
}

// HasSource scans record metadata for the document hash.
func (c *ChromaIndex) HasSource(ctx context.Context, sourceHash string) (bool, error) {
	results, err := c.collection.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: listing chroma records: %v", models.ErrExternalService, err)
	}
	model := c.embedder.ModelID()
	for _, m := range results.GetMetadatas() {
		meta := metadataMap(m)
		if indexed, ok := meta["embedding_model"].(string); ok && indexed != model {
			return false, fmt.Errorf("%w: collection holds %q vectors, embedder is %q", models.ErrEmbeddingMismatch, indexed, model)
		}
		if h, ok := meta["file_hash"].(string); ok && h == sourceHash {
			return true, nil
		}
	}
	return false, nil
}

func (c *ChromaIndex) Close() error {
	if err := c.client.Close(); err != nil {
		return errors.Join(models.ErrExternalService, err)
	}
	return nil
}

// metadataMap converts chroma document metadata to a plain map. The metadata
// type exposes no accessor for all values, so it goes through JSON.
func metadataMap(m chromago.DocumentMetadata) map[string]interface{} {
	out := make(map[string]interface{})
	if m == nil {
		return out
	}
	b, err := json.Marshal(m)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}
