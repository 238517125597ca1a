package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] schema.toml",
	Short: "Validate a schema and report layout violations",
	Long:  `Analyze builds the dependency graph over the declared types, reports duplicate names, forward dependencies and layout cycles, and prints the resolution order`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("graph", false, "print the dependency edges")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	setupColor(cmd)

	defs, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	analysis, ok := analyzeDefs(defs)
	if !ok {
		return fmt.Errorf("schema has %d validation errors and %d layout violations", len(analysis.Errors), len(analysis.Violations))
	}

	if showGraph, _ := cmd.Flags().GetBool("graph"); showGraph {
		for _, e := range analysis.Graph.Edges() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s; %s)\n", e.From, e.To, e.Kind, e.Context)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "resolution order: %s\n", strings.Join(analysis.Order(), ", "))
	return nil
}
