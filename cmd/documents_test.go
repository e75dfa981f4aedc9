package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/services"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n  b\tc", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
	assert.Equal(t, "héllo", preview("héllo", 5))
}

func TestCopyIntoUploads(t *testing.T) {
	root := t.TempDir()
	docs, err := services.NewDocumentService(nil, nil, filepath.Join(root, "uploads"), logger.NewNop())
	require.NoError(t, err)

	src := filepath.Join(root, "page.html")
	require.NoError(t, os.WriteFile(src, []byte("<p>hi</p>"), 0o644))

	dst, err := copyIntoUploads(docs, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(docs.UploadDir(), "page.html"), dst)

	// Files already in the upload directory are used in place.
	again, err := copyIntoUploads(docs, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, again)

	_, err = copyIntoUploads(docs, filepath.Join(root, "missing.pdf"))
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "search", "reset", "ask", "table", "thread", "resume"} {
		assert.True(t, names[want], want)
	}
}
