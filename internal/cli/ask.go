package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/service"
	"docqa/internal/tui"
)

var (
	askDocs []string
	askK    int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.Query(cmd.Context(), service.QueryRequest{
			Query:       strings.Join(args, " "),
			DocumentIDs: askDocs,
			K:           askK,
		})
		if err != nil {
			return err
		}
		printAnswer(cmd, res)
		return nil
	},
}

func printAnswer(cmd *cobra.Command, res domain.QueryResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Answer)
	if len(res.Citations) == 0 {
		return
	}
	fmt.Fprintln(out)
	color.New(color.Bold).Fprintln(out, "Sources:")
	for i, c := range res.Citations {
		source := c.Filename
		if c.PageNumber != nil {
			source = fmt.Sprintf("%s, page %d", source, *c.PageNumber)
		}
		fmt.Fprintf(out, "  [%d] %s %s\n", i+1, idColor.Sprint(source), dimColor.Sprintf("(%.3f)", c.SimilarityScore))
		fmt.Fprintf(out, "      %s\n", dimColor.Sprint(c.Text))
	}
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.svc.Documents(cmd.Context())
		if err != nil {
			return err
		}
		chunks, err := a.svc.IndexSize(cmd.Context())
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("%d documents, %d chunks indexed", len(docs), chunks)
		if len(askDocs) > 0 {
			summary += fmt.Sprintf(", restricted to %d", len(askDocs))
		}
		m := tui.New(a.svc, summary, askK, askDocs)
		_, err = tea.NewProgram(m).Run()
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, tuiCmd} {
		c.Flags().StringSliceVarP(&askDocs, "doc", "d", nil, "restrict retrieval to these document ids (repeatable)")
		c.Flags().IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (default from config)")
	}
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tuiCmd)
}
