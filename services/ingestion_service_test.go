package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    models.Format
		wantErr bool
	}{
		{"report.pdf", models.FormatPDF, false},
		{"REPORT.PDF", models.FormatPDF, false},
		{"page.html", models.FormatHTML, false},
		{"page.htm", models.FormatHTML, false},
		{"notes.docx", "", true},
		{"notes.txt", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIngest_UnsupportedFormatBeforeIO(t *testing.T) {
	svc := NewIngestionService(250, 50, "", nil)

	_, err := svc.Ingest(context.Background(), "/does/not/exist.docx", models.Format("docx"))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	assert.NotErrorIs(t, err, models.ErrIngestion)
}

func TestIngest_HTML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vault.html", `<!DOCTYPE html>
<html>
<head><title>Vault manual</title><style>body { color: red; }</style></head>
<body>
<h1>Access</h1>
<p>The secret code for the vault is ZZQ7.</p><p>Contact AT&amp;T support for resets.</p>
<script>var leaked = "do-not-index";</script>
</body>
</html>`)

	svc := NewIngestionService(250, 50, "", nil)
	chunks, err := svc.Ingest(context.Background(), path, models.FormatHTML)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var all strings.Builder
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, path, c.Source)
		assert.Equal(t, models.FormatHTML, c.Format)
		assert.Len(t, c.SourceHash, 64)
		assert.NotEmpty(t, c.ID)
		all.WriteString(c.Text)
		all.WriteString("\n")
	}
	text := all.String()
	assert.Contains(t, text, "ZZQ7.")
	assert.Contains(t, text, "AT&T")
	assert.Contains(t, text, "ZZQ7.\nContact")
	assert.NotContains(t, text, "do-not-index")
	assert.NotContains(t, text, "color: red")

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hash, chunks[0].SourceHash)
}

func TestIngest_MissingFile(t *testing.T) {
	svc := NewIngestionService(250, 50, "", nil)
	path := filepath.Join(t.TempDir(), "missing.pdf")

	_, err := svc.Ingest(context.Background(), path, models.FormatPDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIngestion)

	var ie *models.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, path, ie.Path)
}

func TestIngest_CorruptPDF(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", "this is definitely not a pdf file")
	svc := NewIngestionService(250, 50, "", nil)

	_, err := svc.Ingest(context.Background(), path, models.FormatPDF)
	assert.ErrorIs(t, err, models.ErrIngestion)
}

func TestIngest_EmptyHTML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.html", "<html><body>   <script>x()</script></body></html>")
	svc := NewIngestionService(250, 50, "", nil)

	_, err := svc.Ingest(context.Background(), path, models.FormatHTML)
	assert.ErrorIs(t, err, models.ErrIngestion)
}

func TestSplit_WordBoundariesAndCoverage(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	text := strings.Join(words, " ")

	svc := NewIngestionService(250, 50, "", nil)
	pieces, err := svc.Split(text)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 1)

	wordRe := regexp.MustCompile(`^w\d+$`)
	seen := make(map[string]bool)
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 250)
		for _, w := range strings.Fields(p) {
			assert.Regexp(t, wordRe, w, "split inside a word")
			seen[w] = true
		}
	}
	for _, w := range words {
		assert.True(t, seen[w], "missing %s", w)
	}

	first := strings.Fields(pieces[0])
	last := strings.Fields(pieces[len(pieces)-1])
	assert.Equal(t, "w0", first[0])
	assert.Equal(t, "w299", last[len(last)-1])

	// Dropping each chunk's overlap with the previous one gives the source back in order.
	assert.Equal(t, words, joinOverlapping(pieces))
}

// joinOverlapping concatenates the words of chunks, dropping the longest
// prefix of each chunk that repeats the end of what came before.
func joinOverlapping(chunks []string) []string {
	var out []string
	for _, c := range chunks {
		fields := strings.Fields(c)
		k := min(len(fields), len(out))
		for ; k > 0; k-- {
			if slices.Equal(out[len(out)-k:], fields[:k]) {
				break
			}
		}
		out = append(out, fields[k:]...)
	}
	return out
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("alpha ", 20)
	para2 := strings.Repeat("beta ", 20)
	svc := NewIngestionService(150, 0, "", nil)

	pieces, err := svc.Split(strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2))
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.NotContains(t, pieces[0], "beta")
	assert.NotContains(t, pieces[1], "alpha")
}

func TestCheckReadable(t *testing.T) {
	assert.NoError(t, checkReadable("Plain readable text."))
	assert.Error(t, checkReadable("   \n\t "))
	assert.Error(t, checkReadable(string([]byte{0xff, 0xfe, 'a'})))
	assert.Error(t, checkReadable(strings.Repeat("�", 5)+"abcdefghij"))
	assert.Error(t, checkReadable("\x01\x02\x03\x04abc"))
}

func TestNewIngestionService_ClampsOverlap(t *testing.T) {
	svc := NewIngestionService(100, 500, "", nil)
	assert.Equal(t, 100, svc.splitter.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, svc.splitter.ChunkOverlap)

	svc = NewIngestionService(20, 40, "", nil)
	assert.Zero(t, svc.splitter.ChunkOverlap)
}
