package vectorstore

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/config"
	"github.com/itish2003/ragagent/models"
)

// bagEmbedder hashes lower-cased words into a fixed number of buckets.
type bagEmbedder struct {
	model string
	dim   int
	calls atomic.Int64
}

func newBagEmbedder(model string) *bagEmbedder { return &bagEmbedder{model: model, dim: 64} }

func (b *bagEmbedder) ModelID() string { return b.model }

func (b *bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	b.calls.Add(1)
	v := make([]float32, b.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(b.dim)]++
	}
	return v, nil
}

// tableEmbedder returns fixed vectors by text.
type tableEmbedder map[string][]float32

func (t tableEmbedder) ModelID() string { return "table" }

func (t tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := t[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "c0", Source: "a.html", SourceHash: "hash-a", Ordinal: 0, Text: "The quarterly report covers revenue and costs."},
		{ID: "c1", Source: "a.html", SourceHash: "hash-a", Ordinal: 1, Text: "The secret code for the vault is ZZQ7."},
		{ID: "c2", Source: "b.pdf", SourceHash: "hash-b", Ordinal: 0, Text: "Penguins live in the southern hemisphere."},
	}
}

func TestFileIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	idx := NewFileIndex(dir, newBagEmbedder("bag-v1"), WithConcurrency(2))

	require.NoError(t, idx.Add(ctx, sampleChunks()))

	results, err := idx.Search(ctx, "what is the ZZQ7 code", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Contains(t, results[0].Text, "ZZQ7")
	assert.Equal(t, "a.html", results[0].Source)

	for _, name := range []string{manifestFile, chunksFile, vectorsFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	m, err := idx.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bag-v1", m.ModelID)
	assert.Equal(t, 64, m.Dim)
	assert.Equal(t, 3, m.Count)
}

func TestFileIndex_SearchLimitsK(t *testing.T) {
	ctx := context.Background()
	idx := NewFileIndex(filepath.Join(t.TempDir(), "index"), newBagEmbedder("bag-v1"))
	require.NoError(t, idx.Add(ctx, sampleChunks()))

	results, err := idx.Search(ctx, "penguins", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)

	results, err = idx.Search(ctx, "penguins", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultK)
}

func TestFileIndex_EmptyIsUnavailable(t *testing.T) {
	ctx := context.Background()
	idx := NewFileIndex(filepath.Join(t.TempDir(), "missing"), newBagEmbedder("bag-v1"))

	_, err := idx.Search(ctx, "anything", 3)
	assert.ErrorIs(t, err, models.ErrRetrievalUnavailable)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileIndex_Reset(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	idx := NewFileIndex(dir, newBagEmbedder("bag-v1"))
	require.NoError(t, idx.Add(ctx, sampleChunks()))

	require.NoError(t, idx.Reset(ctx))

	_, err := idx.Search(ctx, "ZZQ7", 3)
	assert.ErrorIs(t, err, models.ErrRetrievalUnavailable)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	// usable again after a reset
	require.NoError(t, idx.Add(ctx, sampleChunks()[:1]))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileIndex_ReloadFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	first := NewFileIndex(dir, newBagEmbedder("bag-v1"))
	require.NoError(t, first.Add(ctx, sampleChunks()))
	want, err := first.Search(ctx, "vault code", 3)
	require.NoError(t, err)

	second := NewFileIndex(dir, newBagEmbedder("bag-v1"))
	require.NoError(t, second.LoadOrCreate(ctx))
	require.NoError(t, second.LoadOrCreate(ctx))
	got, err := second.Search(ctx, "vault code", 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ok, err := second.HasSource(ctx, "hash-b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = second.HasSource(ctx, "hash-z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileIndex_SeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	reader := NewFileIndex(dir, newBagEmbedder("bag-v1"))
	require.NoError(t, reader.LoadOrCreate(ctx))

	writer := NewFileIndex(dir, newBagEmbedder("bag-v1"))
	require.NoError(t, writer.Add(ctx, sampleChunks()))

	n, err := reader.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFileIndex_ModelMismatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, NewFileIndex(dir, newBagEmbedder("bag-v1")).Add(ctx, sampleChunks()))

	other := NewFileIndex(dir, newBagEmbedder("bag-v2"))
	err := other.Add(ctx, sampleChunks()[:1])
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)

	_, err = other.Search(ctx, "ZZQ7", 3)
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)

	n, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFileIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	emb := newBagEmbedder("bag-v1")
	require.NoError(t, NewFileIndex(dir, emb).Add(ctx, sampleChunks()))

	wide := &bagEmbedder{model: "bag-v1", dim: 128}
	err := NewFileIndex(dir, wide).Add(ctx, sampleChunks()[:1])
	assert.ErrorIs(t, err, models.ErrEmbeddingMismatch)
}

func TestFileIndex_L2Metric(t *testing.T) {
	ctx := context.Background()
	emb := tableEmbedder{
		"far":   {3, 4},
		"near":  {1, 0},
		"mid":   {0, 2},
		"query": {0, 0},
	}
	idx := NewFileIndex(filepath.Join(t.TempDir(), "index"), emb, WithMetric(MetricL2))
	require.NoError(t, idx.Add(ctx, []models.Chunk{
		{ID: "far", Text: "far"},
		{ID: "near", Text: "near"},
		{ID: "mid", Text: "mid"},
	}))

	results, err := idx.Search(ctx, "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"near", "mid", "far"}, []string{results[0].ChunkID, results[1].ChunkID, results[2].ChunkID})
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 5.0, results[2].Score, 1e-9)
}

func TestFileIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	emb := tableEmbedder{"x": {1, 0}, "y": {1, 0}, "z": {1, 0}, "q": {1, 0}}
	idx := NewFileIndex(filepath.Join(t.TempDir(), "index"), emb)
	require.NoError(t, idx.Add(ctx, []models.Chunk{{ID: "x", Text: "x"}, {ID: "y", Text: "y"}, {ID: "z", Text: "z"}}))

	results, err := idx.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, "x", results[0].ChunkID)
	assert.Equal(t, "y", results[1].ChunkID)
	assert.Equal(t, "z", results[2].ChunkID)
}

func TestFileIndex_FailedPersistKeepsState(t *testing.T) {
	ctx := context.Background()
	idx := NewFileIndex(filepath.Join(t.TempDir(), "index"), newBagEmbedder("bag-v1"))
	require.NoError(t, idx.Add(ctx, sampleChunks()[:1]))

	idx.persist = func(string, *snapshot) error { return errors.New("disk full") }
	err := idx.Add(ctx, sampleChunks()[1:])
	assert.ErrorIs(t, err, models.ErrPersistence)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileIndex_EmbedFailure(t *testing.T) {
	ctx := context.Background()
	idx := NewFileIndex(filepath.Join(t.TempDir(), "index"), tableEmbedder{"known": {1}})

	err := idx.Add(ctx, []models.Chunk{{ID: "a", Text: "known"}, {ID: "b", Text: "unknown"}})
	require.Error(t, err)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbedAll_PreservesOrder(t *testing.T) {
	emb := newBagEmbedder("bag-v1")
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	vecs, err := embedAll(context.Background(), emb, texts, 3)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		want, _ := emb.Embed(context.Background(), text)
		assert.Equal(t, want, vecs[i], text)
	}
}

func TestCosineAndL2(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.InDelta(t, 5.0, L2([]float32{0, 0}, []float32{3, 4}), 1e-9)
}

func TestNew_FileBackendFromConfig(t *testing.T) {
	cfg := &config.Config{
		VectorBackend:    "file",
		VectorMetric:     "l2",
		VectorStorePath:  filepath.Join(t.TempDir(), "index"),
		EmbedConcurrency: 2,
		IndexLockTimeout: 200 * time.Millisecond,
	}
	idx, err := New(context.Background(), cfg, newBagEmbedder("bag"), nil)
	require.NoError(t, err)

	f, ok := idx.(*FileIndex)
	require.True(t, ok)
	assert.Equal(t, MetricL2, f.metric)
	assert.Equal(t, 200*time.Millisecond, f.lockTimeout)
}

func TestFileIndex_LockTimeout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	idx := NewFileIndex(dir, newBagEmbedder("bag"), WithLockTimeout(100*time.Millisecond))

	other := flock.New(dir + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	start := time.Now()
	err = idx.Add(context.Background(), sampleChunks())
	require.ErrorIs(t, err, models.ErrPersistence)
	assert.Less(t, time.Since(start), 5*time.Second)
}
