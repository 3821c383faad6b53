// Package main provides the entry point for the fishex CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fishex/cmd/fishex/commands"
	"github.com/Sumatoshi-tech/fishex/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "fishex",
		Short: "Fisher's exact test for 2x2 tables and feature enrichment",
		Long: `fishex computes Fisher's exact test p-values for 2x2 contingency tables.

Commands:
  test      Test a single table
  enrich    Test every feature of a table file with Bonferroni correction
  schema    Print the JSON schema for sets documents`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.RegisterPersistentFlags(rootCmd)

	rootCmd.AddCommand(commands.NewTestCommand())
	rootCmd.AddCommand(commands.NewEnrichCommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fishex %s\n", version.String())
		},
	}
}
