package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	idColor   = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|glob>...",
	Short: "Extract, chunk, embed and index documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandInputs(args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		failed := 0
		for _, p := range paths {
			res, err := a.svc.IngestFile(cmd.Context(), p, filepath.Base(p))
			if err != nil {
				failed++
				errColor.Fprintf(out, "✗ %s: %v\n", p, err)
				continue
			}
			okColor.Fprintf(out, "✓ %s", res.Filename)
			fmt.Fprintf(out, " %s (%d chunks)\n", idColor.Sprint(res.DocumentID), res.ChunksCreated)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(paths))
		}
		return nil
	},
}

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"ls"},
	Short:   "List stored documents",
	Args:    cobra.NoArgs,
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
		out := cmd.OutOrStdout()
		if len(docs) == 0 {
			dimColor.Fprintln(out, "No documents yet. Add some with `docqa ingest <file>`.")
			return nil
		}
		for _, d := range docs {
			fmt.Fprintf(out, "%s  %-5s  %s  %s\n",
				idColor.Sprint(d.ID), d.FileType, d.UploadedAt.Format("2006-01-02 15:04"), d.Filename)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Remove a document from the catalog",
	Long: `Remove a document and its chunks from the catalog. Its vectors stay in the
index until "docqa rebuild" runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		okColor.Fprintf(out, "Deleted %s\n", args[0])
		warnColor.Fprintln(out, "The index still holds its chunks; run `docqa rebuild` to drop them.")
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector index from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.svc.RebuildIndex(cmd.Context())
		if err != nil {
			return err
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Index rebuilt with %d chunks\n", n)
		return nil
	},
}

var summarizeBullets int

var summarizeCmd = &cobra.Command{
	Use:   "summarize <document-id>",
	Short: "Summarize a stored document in bullet points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if summarizeBullets < 0 {
			return errors.New("--bullets must be positive")
		}
		a, err := openApp(cmd.Context(), currentConfig, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.svc.SummarizeDocument(cmd.Context(), args[0], summarizeBullets)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		color.New(color.Bold).Fprintln(out, sum.Filename)
		fmt.Fprintln(out, strings.TrimSpace(sum.Summary))
		return nil
	},
}

func init() {
	summarizeCmd.Flags().IntVarP(&summarizeBullets, "bullets", "b", 0, "maximum number of bullets (default from config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(summarizeCmd)
}

// expandInputs resolves glob patterns. Arguments without a match are kept so
// the ingest reports them as missing files.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			out = append(out, arg)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}
