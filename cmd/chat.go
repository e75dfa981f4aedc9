package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itish2003/ragagent/models"
)

var (
	flagAskThread string
	flagAskImage  string
	flagTableCSV  string
	flagThreadLog bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the agent a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var tableCmd = &cobra.Command{
	Use:   "table --csv <file> <question>",
	Short: "Answer a question about a CSV table",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTable,
}

var threadCmd = &cobra.Command{
	Use:   "thread [id]",
	Short: "List threads, or show the messages of one thread",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runThread,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Finish a turn that was interrupted before it answered",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	askCmd.Flags().StringVarP(&flagAskThread, "thread", "t", "", "Thread id to continue (a new one is created when empty)")
	askCmd.Flags().StringVar(&flagAskImage, "image", "", "Image whose text is added to the question")
	tableCmd.Flags().StringVar(&flagTableCSV, "csv", "", "CSV file to query")
	_ = tableCmd.MarkFlagRequired("csv")
	threadCmd.Flags().BoolVar(&flagThreadLog, "checkpoints", false, "Show the checkpoint history instead of messages")
	rootCmd.AddCommand(askCmd, tableCmd, threadCmd, resumeCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(cmd.Context()); err != nil {
		return err
	}

	query := strings.Join(args, " ")
	var res *models.RunResult
	if flagAskImage != "" {
		data, err := os.ReadFile(flagAskImage)
		if err != nil {
			return err
		}
		res, err = a.agent.RunWithImage(cmd.Context(), "", flagAskThread, query, data)
		if err != nil {
			return err
		}
	} else {
		res, err = a.agent.Run(cmd.Context(), flagAskThread, query)
		if err != nil {
			return err
		}
	}
	printResult(res)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(cmd.Context()); err != nil {
		return err
	}

	res, err := a.agent.Resume(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *models.RunResult) {
	fmt.Println(res.Answer)
	fmt.Println()
	for _, c := range res.ToolCalls {
		fmt.Printf("  tool: %s(%q)\n", c.Name, c.Argument)
	}
	fmt.Printf("  thread: %s  steps: %d\n", res.ThreadID, res.Steps)
}

func runTable(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(cmd.Context()); err != nil {
		return err
	}

	f, err := os.Open(flagTableCSV)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.tables.Query(cmd.Context(), f, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(res.Answer)
	return nil
}

func runThread(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openStore(); err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 0 {
		ids, err := a.store.Threads(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	id := args[0]
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if flagThreadLog {
		history, err := a.store.History(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "SEQ\tSTATE\tMESSAGES\tCREATED")
		for _, h := range history {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", h.Seq, h.State, h.Messages, h.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	}

	conv, found, err := a.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("thread %s not found", id)
	}
	if conv.InFlight() {
		fmt.Fprintf(os.Stderr, "thread %s has an unfinished turn (state %s); run 'ragagent resume %s'\n", id, conv.State, id)
	}
	fmt.Fprintln(w, "ROLE\tCONTENT")
	for _, m := range conv.Messages {
		role := string(m.Role)
		if m.Role == models.RoleTool {
			role += ":" + m.ToolName
		}
		fmt.Fprintf(w, "%s\t%s\n", role, preview(m.Content, 100))
	}
	return w.Flush()
}
