package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProvider string
	flagQuiet    bool
)

var rootCmd = &cobra.Command{
	Use:          "ragagent",
	Short:        "Chat with your documents through a tool-using agent",
	SilenceUsage: true,
	Long: `ragagent indexes PDF and HTML documents into a local vector index and answers
questions with an agent that can search them, do arithmetic, check the weather
and look topics up on Wikipedia. Conversations are checkpointed by thread id.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Chat model provider: gemini or llama (default from LLM_PROVIDER)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress log output")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
