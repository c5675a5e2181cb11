package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"docqa/internal/config"
)

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, the config file, DOCQA_* environment
variables and flags have been merged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config file: %s\n\n", configPath)

		pp.ColoringEnabled = !color.NoColor
		if _, err := pp.Fprintln(out, currentConfig); err != nil {
			return err
		}

		keys := config.OverrideKeys()
		sort.Strings(keys)
		fmt.Fprintln(out, "\nEnvironment overrides:")
		for _, k := range keys {
			env := config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
			fmt.Fprintf(out, "  %-30s %s\n", env, k)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}
