package services

import (
	"context"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/vectorstore"
)

// wordEmbedder hashes words into a fixed number of buckets.
type wordEmbedder struct{}

func (wordEmbedder) ModelID() string { return "test/words" }

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,!?")))
		v[h.Sum32()%32]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v, nil
}

func newTestDocs(t *testing.T) (*DocumentService, vectorstore.Index) {
	t.Helper()
	root := t.TempDir()
	index := vectorstore.NewFileIndex(filepath.Join(root, "index"), wordEmbedder{})
	docs, err := NewDocumentService(NewIngestionService(250, 50, "", nil), index, filepath.Join(root, "uploads"), logger.NewNop())
	require.NoError(t, err)
	return docs, index
}

const penguinHTML = `<html><body><h1>Penguins</h1><p>Emperor penguins breed during the Antarctic winter.</p></body></html>`

func TestValidateUploadName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr error
	}{
		{"report.pdf", "report.pdf", nil},
		{"../../etc/page.html", "page.html", nil},
		{`..\..\win\page.htm`, "page.htm", nil},
		{"/abs/path/doc.pdf", "doc.pdf", nil},
		{".hidden.pdf", "", models.ErrInvalidInput},
		{"", "", models.ErrInvalidInput},
		{"..", "", models.ErrInvalidInput},
		{"notes.docx", "", models.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := ValidateUploadName(tt.name)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentService_SaveUploadStaysInDir(t *testing.T) {
	docs, _ := newTestDocs(t)

	path, err := docs.SaveUpload("../../escape.html", strings.NewReader(penguinHTML))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(docs.UploadDir(), "escape.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, penguinHTML, string(data))

	entries, err := os.ReadDir(docs.UploadDir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestDocumentService_AddDocumentSkipsDuplicates(t *testing.T) {
	docs, index := newTestDocs(t)
	ctx := context.Background()

	path, err := docs.SaveUpload("penguins.html", strings.NewReader(penguinHTML))
	require.NoError(t, err)

	res, err := docs.AddDocument(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Positive(t, res.Chunks)

	count, err := index.Count(ctx)
	require.NoError(t, err)

	// Same bytes under another name.
	copyPath := writeFile(t, docs.UploadDir(), "copy.html", penguinHTML)
	res, err = docs.AddDocument(ctx, copyPath)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	after, err := docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, count, after)
}

func TestDocumentService_Reset(t *testing.T) {
	docs, _ := newTestDocs(t)
	ctx := context.Background()

	path, err := docs.SaveUpload("penguins.html", strings.NewReader(penguinHTML))
	require.NoError(t, err)
	_, err = docs.AddDocument(ctx, path)
	require.NoError(t, err)

	require.NoError(t, docs.Reset(ctx))
	count, err := docs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Files survive a reset and can be indexed again.
	res, err := docs.AddDocument(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestRetrievalService(t *testing.T) {
	docs, index := newTestDocs(t)
	ctx := context.Background()
	retrieval := NewRetrievalService(index, 0, logger.NewNop())

	text, err := retrieval.Retrieve(ctx, "penguins")
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsMessage, text)

	path, err := docs.SaveUpload("penguins.html", strings.NewReader(penguinHTML))
	require.NoError(t, err)
	_, err = docs.AddDocument(ctx, path)
	require.NoError(t, err)

	text, err = retrieval.Retrieve(ctx, "when do emperor penguins breed?")
	require.NoError(t, err)
	assert.Contains(t, text, "Antarctic winter")

	results, err := retrieval.Search(ctx, "penguins", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = retrieval.Search(ctx, "", 1)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestWatcherService_ScanDirectory(t *testing.T) {
	docs, _ := newTestDocs(t)
	ctx := context.Background()
	watcher := NewWatcherService(docs, logger.NewNop())

	// Missing directory is not an error.
	added, err := watcher.ScanDirectory(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	require.NoError(t, os.MkdirAll(docs.UploadDir(), 0o755))
	writeFile(t, docs.UploadDir(), "penguins.html", penguinHTML)
	writeFile(t, docs.UploadDir(), "broken.pdf", "not a pdf")
	writeFile(t, docs.UploadDir(), "notes.txt", "ignored")
	writeFile(t, docs.UploadDir(), ".draft.html", penguinHTML)

	added, err = watcher.ScanDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = watcher.ScanDirectory(ctx)
	require.NoError(t, err)
	assert.Zero(t, added, "second scan finds everything indexed")
}

func TestWatcherService_Watch(t *testing.T) {
	docs, _ := newTestDocs(t)
	require.NoError(t, os.MkdirAll(docs.UploadDir(), 0o755))
	watcher := NewWatcherService(docs, logger.NewNop())
	watcher.settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, docs.UploadDir(), "penguins.html", penguinHTML)

	assert.Eventually(t, func() bool {
		n, err := docs.Count(context.Background())
		return err == nil && n > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
