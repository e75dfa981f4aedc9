package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

const (
	defaultLockTimeout = 30 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// FileIndex is a local index stored as a manifest, a JSONL chunk file and a
// flat little-endian float32 vector file. It is loaded lazily and written
// through on every mutation.
type FileIndex struct {
	dir         string
	embedder    Embedder
	metric      Metric
	concurrency int
	lockTimeout time.Duration
	log         *logger.Logger
	persist     func(dir string, s *snapshot) error

	mu        sync.RWMutex
	loaded    bool
	state     *snapshot
	loadedMod time.Time
}

// Option configures a FileIndex.
type Option func(*FileIndex)

func WithMetric(m Metric) Option {
	return func(f *FileIndex) {
		if m != "" {
			f.metric = m
		}
	}
}

// WithConcurrency bounds the number of embedding requests in flight during Add.
func WithConcurrency(n int) Option {
	return func(f *FileIndex) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(f *FileIndex) {
		if log != nil {
			f.log = log
		}
	}
}

// WithLockTimeout bounds how long a writer waits for another process holding the index lock.
func WithLockTimeout(d time.Duration) Option {
	return func(f *FileIndex) {
		if d > 0 {
			f.lockTimeout = d
		}
	}
}

func NewFileIndex(dir string, embedder Embedder, opts ...Option) *FileIndex {
	f := &FileIndex{
		dir:         filepath.Clean(dir),
		embedder:    embedder,
		metric:      MetricCosine,
		concurrency: 4,
		lockTimeout: defaultLockTimeout,
		log:         logger.NewNop(),
		persist:     writeSnapshot,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FileIndex) emptySnapshot() *snapshot {
	now := time.Now().UTC().Format(time.RFC3339)
	return &snapshot{manifest: Manifest{
		IndexVersion: indexVersion,
		Metric:       f.metric,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
}

// readDisk returns the on-disk index, or an empty one when none exists.
func (f *FileIndex) readDisk() (*snapshot, time.Time, error) {
	s, err := readSnapshot(f.dir)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: loading index %s: %v", models.ErrPersistence, f.dir, err)
	}
	if s == nil {
		return f.emptySnapshot(), time.Time{}, nil
	}
	var mod time.Time
	if st, err := os.Stat(filepath.Join(f.dir, manifestFile)); err == nil {
		mod = st.ModTime()
	}
	return s, mod, nil
}

// LoadOrCreate loads the index from disk, or starts an empty one if the
// directory holds none. Calling it again is a no-op.
func (f *FileIndex) LoadOrCreate(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return nil
	}
	s, mod, err := f.readDisk()
	if err != nil {
		return err
	}
	f.state, f.loadedMod, f.loaded = s, mod, true
	f.log.Debug("vector index loaded", "path", f.dir, "chunks", len(s.chunks), "model", s.manifest.ModelID)
	return nil
}

// current returns the loaded snapshot, reloading it if another process has
// rewritten the index since it was read. Snapshots are never mutated in place.
func (f *FileIndex) current(ctx context.Context) (*snapshot, error) {
	if err := f.LoadOrCreate(ctx); err != nil {
		return nil, err
	}

	var mod time.Time
	if st, err := os.Stat(filepath.Join(f.dir, manifestFile)); err == nil {
		mod = st.ModTime()
	}

	f.mu.RLock()
	s, stale := f.state, !mod.Equal(f.loadedMod)
	f.mu.RUnlock()
	if !stale {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fresh, freshMod, err := f.readDisk()
	if err != nil {
		return nil, err
	}
	f.state, f.loadedMod = fresh, freshMod
	return fresh, nil
}

func (f *FileIndex) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.dir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	fl := flock.New(f.dir + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring index lock: %v", models.ErrPersistence, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %s is locked by another process", models.ErrPersistence, f.dir)
	}
	return func() {
		_ = fl.Unlock()
		_ = fl.Close()
	}, nil
}

// Add embeds chunks and appends them to the index, persisting before it
// returns. On any failure the index is left as it was.
func (f *FileIndex) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	cur, err := f.current(ctx)
	if err != nil {
		return err
	}
	model := f.embedder.ModelID()
	if err := checkModel(cur.manifest, model, -1); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	start := time.Now()
	vecs, err := embedAll(ctx, f.embedder, texts, f.concurrency)
	if err != nil {
		return err
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: chunk %d has dimension %d, expected %d", models.ErrEmbeddingMismatch, i, len(v), dim)
		}
	}

	unlock, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Another process may have written since cur was read.
	base, _, err := f.readDisk()
	if err != nil {
		return err
	}
	if err := checkModel(base.manifest, model, dim); err != nil {
		return err
	}

	next := &snapshot{
		manifest: base.manifest,
		chunks:   make([]models.Chunk, 0, len(base.chunks)+len(chunks)),
		vectors:  make([]float32, 0, len(base.vectors)+len(chunks)*dim),
	}
	next.chunks = append(append(next.chunks, base.chunks...), chunks...)
	next.vectors = append(next.vectors, base.vectors...)
	for _, v := range vecs {
		next.vectors = append(next.vectors, v...)
	}
	next.manifest.ModelID = model
	next.manifest.Dim = dim
	next.manifest.Metric = f.metric
	next.manifest.Count = len(next.chunks)
	next.manifest.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := f.persist(f.dir, next); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	var mod time.Time
	if st, err := os.Stat(filepath.Join(f.dir, manifestFile)); err == nil {
		mod = st.ModTime()
	}
	f.state, f.loadedMod, f.loaded = next, mod, true
	f.log.Info("chunks indexed", "added", len(chunks), "total", len(next.chunks), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// checkModel rejects vectors from a different model, or of a different
// dimension when dim >= 0, than the ones already stored.
func checkModel(m Manifest, model string, dim int) error {
	if m.Count == 0 {
		return nil
	}
	if m.ModelID != model {
		return fmt.Errorf("%w: index built with %q, embedder is %q; reset and re-ingest", models.ErrEmbeddingMismatch, m.ModelID, model)
	}
	if dim >= 0 && m.Dim != dim {
		return fmt.Errorf("%w: index dimension %d, embedder produced %d", models.ErrEmbeddingMismatch, m.Dim, dim)
	}
	return nil
}

// Search returns the k chunks closest to query. Ties keep insertion order.
func (f *FileIndex) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	s, err := f.current(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.chunks) == 0 {
		return nil, models.ErrRetrievalUnavailable
	}
	if err := checkModel(s.manifest, f.embedder.ModelID(), -1); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}

	qv, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(qv) != s.manifest.Dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", models.ErrEmbeddingMismatch, len(qv), s.manifest.Dim)
	}

	results := make([]models.SearchResult, len(s.chunks))
	for i, c := range s.chunks {
		var score float64
		if f.metric == MetricL2 {
			score = L2(qv, s.row(i))
		} else {
			score = Cosine(qv, s.row(i))
		}
		results[i] = models.SearchResult{
			ChunkID: c.ID,
			Source:  c.Source,
			Ordinal: c.Ordinal,
			Text:    c.Text,
			Score:   score,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if f.metric == MetricL2 {
			return results[i].Score < results[j].Score
		}
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Reset deletes the index directory. The index is empty afterwards.
func (f *FileIndex) Reset(ctx context.Context) error {
	unlock, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("%w: removing index %s: %v", models.ErrPersistence, f.dir, err)
	}
	f.state, f.loadedMod, f.loaded = f.emptySnapshot(), time.Time{}, true
	f.log.Info("vector index reset", "path", f.dir)
	return nil
}

func (f *FileIndex) Count(ctx context.Context) (int, error) {
	s, err := f.current(ctx)
	if err != nil {
		return 0, err
	}
	return len(s.chunks), nil
}

func (f *FileIndex) HasSource(ctx context.Context, sourceHash string) (bool, error) {
	s, err := f.current(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range s.chunks {
		if c.SourceHash == sourceHash {
			return true, nil
		}
	}
	return false, nil
}

// Manifest returns a copy of the loaded manifest.
func (f *FileIndex) Manifest(ctx context.Context) (Manifest, error) {
	s, err := f.current(ctx)
	if err != nil {
		return Manifest{}, err
	}
	return s.manifest, nil
}

func (f *FileIndex) Close() error { return nil }
