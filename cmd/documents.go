package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/services"
)

var (
	flagIngestCopy bool
	flagSearchK    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index PDF or HTML documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the vector index (uploaded files are kept)",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	ingestCmd.Flags().BoolVar(&flagIngestCopy, "copy", true, "Copy files into the upload directory before indexing")
	searchCmd.Flags().IntVar(&flagSearchK, "k", 0, "Number of results (default from RETRIEVAL_K)")
	rootCmd.AddCommand(ingestCmd, searchCmd, resetCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, arg := range args {
		path := arg
		if flagIngestCopy {
			path, err = copyIntoUploads(a.docs, arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", arg, err)
				failed++
				continue
			}
		}
		res, err := a.docs.AddDocument(cmd.Context(), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v (%s)\n", arg, err, models.ErrorKind(err))
			failed++
			continue
		}
		if res.Skipped {
			fmt.Printf("• %s already indexed\n", arg)
			continue
		}
		fmt.Printf("✓ %s: %d chunks\n", arg, res.Chunks)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(args))
	}
	return nil
}

func copyIntoUploads(docs *services.DocumentService, src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	if filepath.Dir(abs) == docs.UploadDir() {
		return abs, nil
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return docs.SaveUpload(filepath.Base(abs), f)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.retrieval.Search(cmd.Context(), strings.Join(args, " "), flagSearchK)
	if err != nil {
		if models.ErrorKind(err) == "RetrievalUnavailable" {
			fmt.Println(services.NoDocumentsMessage)
			return nil
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSOURCE\t#\tTEXT")
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%s\t%d\t%s\n", r.Score, filepath.Base(r.Source), r.Ordinal, preview(r.Text, 80))
	}
	return w.Flush()
}

func runReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.docs.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Vector index cleared.")
	return nil
}

// preview flattens whitespace and cuts s to at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
