package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

const (
	DefaultChunkSize    = 250
	DefaultChunkOverlap = 50

	// maxGarbledRatio is the share of replacement or control runes above
	// which extracted text is treated as unreadable.
	maxGarbledRatio = 0.10
)

var licenseOnce sync.Once

// IngestionService turns PDF and HTML files into chunks ready for embedding.
type IngestionService struct {
	splitter textsplitter.RecursiveCharacter
	log      *logger.Logger
}

// NewIngestionService sets the UniPDF metered key (once per process) and
// builds the splitter.
func NewIngestionService(chunkSize, chunkOverlap int, licenseKey string, log *logger.Logger) *IngestionService {
	if log == nil {
		log = logger.NewNop()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
		if chunkOverlap >= chunkSize {
			chunkOverlap = 0
		}
	}
	if licenseKey != "" {
		licenseOnce.Do(func() {
			if err := license.SetMeteredKey(licenseKey); err != nil {
				log.Error("failed to set unidoc license key, PDF extraction may fail", "error", err)
			}
		})
	}
	return &IngestionService{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		log: log,
	}
}

// FormatFromPath infers the document format from the file extension.
func FormatFromPath(path string) (models.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return models.FormatPDF, nil
	case ".html", ".htm":
		return models.FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q (only .pdf, .html and .htm are accepted)", models.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Ingest extracts, validates and splits one document. The format is checked
// before the file is touched.
func (s *IngestionService) Ingest(ctx context.Context, path string, format models.Format) ([]models.Chunk, error) {
	if format != models.FormatPDF && format != models.FormatHTML {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, format)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.IngestionError{Path: path, Err: err}
	}

	var text string
	switch format {
	case models.FormatPDF:
		text, err = extractPDF(raw)
	case models.FormatHTML:
		text, err = extractHTML(ctx, raw)
	}
	if err != nil {
		return nil, &models.IngestionError{Path: path, Err: err}
	}
	if err := checkReadable(text); err != nil {
		return nil, &models.IngestionError{Path: path, Err: err}
	}

	pieces, err := s.Split(text)
	if err != nil {
		return nil, &models.IngestionError{Path: path, Err: err}
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ID:         uuid.NewString(),
			Source:     path,
			SourceHash: hash,
			Format:     format,
			Ordinal:    len(chunks),
			Text:       p,
		})
	}
	if len(chunks) == 0 {
		return nil, &models.IngestionError{Path: path, Err: errors.New("document produced no chunks")}
	}
	s.log.Info("document ingested", "path", path, "format", format, "chunks", len(chunks), "chars", len(text))
	return chunks, nil
}

// Split breaks text at the nearest paragraph, line or word boundary at or
// before the configured chunk size.
func (s *IngestionService) Split(text string) ([]string, error) {
	return s.splitter.SplitText(text)
}

// HashFile returns the hex sha256 of a file's content.
func HashFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func extractPDF(raw []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("counting pages: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// blockSelector lists elements whose end is a line break in rendered text.
const blockSelector = "p, div, br, li, tr, td, th, h1, h2, h3, h4, h5, h6, section, article, header, footer, title, pre, blockquote"

func extractHTML(ctx context.Context, raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	doc.Find(blockSelector).AfterHtml("\n")

	prepared, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}

	docs, err := documentloaders.NewHTML(strings.NewReader(prepared)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading html: %w", err)
	}
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.PageContent)
		sb.WriteString("\n")
	}
	return normalizeWhitespace(html.UnescapeString(sb.String())), nil
}

// normalizeWhitespace collapses runs of spaces inside lines and keeps at most
// one blank line between paragraphs.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func checkReadable(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("no extractable text")
	}
	if !utf8.ValidString(text) {
		return errors.New("text is not valid UTF-8")
	}
	var total, bad int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r == utf8.RuneError || unicode.IsControl(r) {
			bad++
		}
	}
	if total > 0 && float64(bad)/float64(total) > maxGarbledRatio {
		return fmt.Errorf("text looks garbled (%d of %d characters unreadable)", bad, total)
	}
	return nil
}
