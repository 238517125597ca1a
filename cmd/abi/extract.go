package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"abi/internal/resolve"
	"abi/internal/snapshot"
	"abi/internal/walk"
)

var extractCmd = &cobra.Command{
	Use:   "extract [flags] schema.toml root-type buffer.bin",
	Short: "Walk a serialized buffer and print the decoded values",
	Long:  `Extract resolves the schema (or loads a previously written snapshot), walks the buffer as one instance of the root type, and prints the decoded parameters, requested offsets and derived discriminators`,
	Args:  cobra.ExactArgs(3),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringSlice("offsets", nil, "field paths whose start offsets to report")
	extractCmd.Flags().String("snapshot", "", "load the resolved table from this snapshot instead of resolving")
}

func runExtract(cmd *cobra.Command, args []string) error {
	setupColor(cmd)

	rootName, bufPath := args[1], args[2]

	table, err := loadTable(cmd, args[0])
	if err != nil {
		return err
	}
	root, ok := table.Lookup(rootName)
	if !ok {
		return fmt.Errorf("unknown root type %q", rootName)
	}

	buf, err := os.ReadFile(bufPath)
	if err != nil {
		return fmt.Errorf("failed to read buffer: %w", err)
	}

	wantOffsets, _ := cmd.Flags().GetStringSlice("offsets")
	res, err := walk.Extract(root, buf, table, wantOffsets)
	if err != nil {
		return fmt.Errorf("buffer does not conform to schema: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, path := range res.Paths() {
		fmt.Fprintf(out, "param   %s = %d\n", path, res.Params[path])
	}
	for _, path := range sortedKeys(res.Offsets) {
		fmt.Fprintf(out, "offset  %s = %d\n", path, res.Offsets[path])
	}
	for _, path := range sortedKeys(res.Derived) {
		fmt.Fprintf(out, "derived %s = %d\n", path, res.Derived[path])
	}
	return nil
}

func loadTable(cmd *cobra.Command, manifestPath string) (resolve.Table, error) {
	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()
		return snapshot.Decode(f)
	}

	defs, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if _, ok := analyzeDefs(defs); !ok {
		return nil, fmt.Errorf("schema rejected by analysis")
	}
	table, _, err := resolveDefs(defs)
	return table, err
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
