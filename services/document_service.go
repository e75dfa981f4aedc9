package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/vectorstore"
)

// AddResult reports what AddDocument did with a file.
type AddResult struct {
	Source  string
	Chunks  int
	Skipped bool
}

// DocumentService owns the upload directory and feeds documents into the index.
type DocumentService struct {
	ingestion *IngestionService
	index     vectorstore.Index
	uploadDir string
	log       *logger.Logger

	// mu serializes hash check and insert so the same file is never indexed twice.
	mu sync.Mutex
}

func NewDocumentService(ingestion *IngestionService, index vectorstore.Index, uploadDir string, log *logger.Logger) (*DocumentService, error) {
	if log == nil {
		log = logger.NewNop()
	}
	abs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for upload dir: %w", err)
	}
	return &DocumentService{ingestion: ingestion, index: index, uploadDir: abs, log: log}, nil
}

func (d *DocumentService) UploadDir() string { return d.uploadDir }

// ValidateUploadName reduces name to a bare file name and checks its format.
func ValidateUploadName(name string) (string, models.Format, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return "", "", fmt.Errorf("%w: invalid file name %q", models.ErrInvalidInput, name)
	}
	format, err := FormatFromPath(base)
	if err != nil {
		return "", "", err
	}
	return base, format, nil
}

// sanitizeFilename resolves name inside the upload directory.
func (d *DocumentService) sanitizeFilename(name string) (string, error) {
	base, _, err := ValidateUploadName(name)
	if err != nil {
		return "", err
	}
	cleanPath := filepath.Join(d.uploadDir, base)
	if !strings.HasPrefix(cleanPath, d.uploadDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the upload directory", models.ErrInvalidInput, name)
	}
	return cleanPath, nil
}

// SaveUpload writes r to the upload directory under a sanitized name and
// returns the final path. The file appears atomically.
func (d *DocumentService) SaveUpload(name string, r io.Reader) (string, error) {
	path, err := d.sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.uploadDir, ".upload-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	d.log.Info("upload saved", "path", path)
	return path, nil
}

// AddDocument ingests path and adds its chunks to the index unless a file
// with the same content is already indexed.
func (d *DocumentService) AddDocument(ctx context.Context, path string) (*AddResult, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	hash, err := HashFile(path)
	if err != nil {
		return nil, &models.IngestionError{Path: path, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	indexed, err := d.index.HasSource(ctx, hash)
	if err != nil {
		return nil, err
	}
	if indexed {
		d.log.Info("document already indexed, skipping", "path", path)
		return &AddResult{Source: path, Skipped: true}, nil
	}

	chunks, err := d.ingestion.Ingest(ctx, path, format)
	if err != nil {
		return nil, err
	}
	if err := d.index.Add(ctx, chunks); err != nil {
		return nil, err
	}
	return &AddResult{Source: path, Chunks: len(chunks)}, nil
}

// Reset empties the index. Uploaded files are kept.
func (d *DocumentService) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index.Reset(ctx)
}

func (d *DocumentService) Count(ctx context.Context) (int, error) {
	return d.index.Count(ctx)
}
