package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"abi/internal/resolve"
	"abi/internal/snapshot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] schema.toml [type...]",
	Short: "Resolve a schema and print type layouts",
	Long:  `Inspect resolves every declared type and prints its footprint, alignment and dynamic parameters; with --snapshot the resolved table is serialized for code-generation backends`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("snapshot", "", "write the resolved table to this file")
}

func runInspect(cmd *cobra.Command, args []string) error {
	setupColor(cmd)

	defs, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	if _, ok := analyzeDefs(defs); !ok {
		return fmt.Errorf("schema rejected by analysis")
	}
	table, order, err := resolveDefs(defs)
	if err != nil {
		return err
	}

	names := order
	if len(args) > 1 {
		names = args[1:]
	}
	for _, name := range names {
		rt, ok := table.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown type %q", name)
		}
		printType(cmd.OutOrStdout(), rt)
	}

	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		if err := writeSnapshot(path, table); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot written to %s\n", path)
	}
	return nil
}

func printType(w io.Writer, rt *resolve.Type) {
	if rt.Size.IsVariable {
		params := make([]string, 0, len(rt.Size.Params))
		for path := range rt.Size.Params {
			params = append(params, path)
		}
		sort.Strings(params)
		fmt.Fprintf(w, "%s: variable size, align %d, params [%s]\n", rt.Name, rt.Align, strings.Join(params, ", "))
	} else {
		fmt.Fprintf(w, "%s: %d bytes, align %d\n", rt.Name, rt.Size.Bytes, rt.Align)
	}
	owners := make([]string, 0, len(rt.DynamicParams))
	for owner := range rt.DynamicParams {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		fmt.Fprintf(w, "  %s <- %s\n", owner, strings.Join(rt.DynamicParams[owner], ", "))
	}
}

func writeSnapshot(path string, table resolve.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := snapshot.Encode(f, table); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return f.Close()
}
